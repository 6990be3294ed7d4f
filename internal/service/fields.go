package service

import (
	"github.com/address-vault/internal/models"
	"github.com/address-vault/internal/types"
)

// resolveRequestedFields normalizes a requested-field list against the
// grant's scope. The scope is a hard ceiling: a field whose flag is false
// is never included, even when explicitly requested. An empty request
// means "everything the scope allows". Unknown field names are a request
// error, not a silent drop.
//
// The returned fields are canonical and in canonical order, so the audit
// log records a stable field list.
func resolveRequestedFields(scope types.ScopeFlags, requested []string) ([]types.AddressField, *types.ServiceError) {
	wanted := make(map[types.AddressField]bool, len(types.AllAddressFields))

	if len(requested) == 0 {
		for _, field := range types.AllAddressFields {
			wanted[field] = true
		}
	} else {
		var unknown []string
		for _, name := range requested {
			field, ok := types.NormalizeAddressField(name)
			if !ok {
				unknown = append(unknown, name)
				continue
			}
			wanted[field] = true
		}
		if len(unknown) > 0 {
			return nil, &types.ServiceError{
				Code:    types.CodeInvalidRequest,
				Message: "unknown address field name",
				Details: map[string]interface{}{
					"unknown_fields": unknown,
				},
			}
		}
	}

	var resolved []types.AddressField
	for _, field := range types.AllAddressFields {
		if wanted[field] && scope.Allows(field) {
			resolved = append(resolved, field)
		}
	}

	return resolved, nil
}

// filterAddress projects an address onto the resolved field list.
func filterAddress(address *models.PhysicalAddress, fields []types.AddressField) map[types.AddressField]string {
	view := make(map[types.AddressField]string, len(fields))
	for _, field := range fields {
		view[field] = address.Field(field)
	}
	return view
}
