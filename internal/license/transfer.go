package license

import "daon/internal/domain"

// TransferPolicy is the per-license hook consulted by the ownership
// transfer protocol. Most licenses impose nothing beyond the ordinary
// owner check; stricter licenses can return ErrLicenseViolation wrapped
// with a reason without changing the transfer control flow.
type TransferPolicy interface {
	CheckTransfer(record domain.ContentRecord, newOwner string) error
}

type unrestrictedTransfers struct{}

func (unrestrictedTransfers) CheckTransfer(domain.ContentRecord, string) error { return nil }

// liberationTransfers: the liberation license permits transfers between
// any owners today. The type exists so transfer-time terms can be added
// without touching the protocol.
type liberationTransfers struct{}

func (liberationTransfers) CheckTransfer(domain.ContentRecord, string) error { return nil }

type TransferPolicyRegistry struct {
	policies map[string]TransferPolicy
	fallback TransferPolicy
}

func NewTransferPolicyRegistry() *TransferPolicyRegistry {
	return &TransferPolicyRegistry{
		policies: map[string]TransferPolicy{
			domain.LicenseLiberationV1: liberationTransfers{},
		},
		fallback: unrestrictedTransfers{},
	}
}

// PolicyFor dispatches on the license identifier; unknown licenses get
// the unrestricted fallback.
func (r *TransferPolicyRegistry) PolicyFor(license string) TransferPolicy {
	if p, ok := r.policies[license]; ok {
		return p
	}
	return r.fallback
}
