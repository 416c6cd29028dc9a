package models

// ValidatedStatus is the terminal outcome of one validation cycle.
type ValidatedStatus string

const (
	ValidatedStatusSuccess ValidatedStatus = "success"
	ValidatedStatusError   ValidatedStatus = "error"
	ValidatedStatusExceed  ValidatedStatus = "exceed"
)

// ValidatedStatusState is the transient display state owned by the validation
// debouncer. It is reset on every new validation cycle and never persisted.
type ValidatedStatusState struct {
	Status  ValidatedStatus `json:"status,omitzero"`
	Message string          `json:"message,omitzero"`
}

// Empty reports whether no validation outcome has landed yet.
func (s ValidatedStatusState) Empty() bool {
	return s.Status == "" && s.Message == ""
}
