package loadbalancing

import (
	"fmt"
	"sync"

	"github.com/modelgate/credential-engine/internal/models"
)

// Reconciler holds the client-local draft pool for one model. The draft is
// exclusively owned by the instance backing one open editing session; it is
// never shared across sessions. All mutations derive the next state from the
// latest state under the mutex, so edits made from a long-lived entry modal
// cannot clobber changes that landed in between.
type Reconciler struct {
	mu    sync.Mutex
	draft models.ModelLoadBalancingConfig

	// originals holds, per entry id, the secret field values as loaded when
	// the session opened. Payload assembly compares against these to decide
	// which secrets were actually edited and must be retransmitted.
	originals map[string]map[string]string

	secretFields []string
	allowed      bool
}

// NewReconciler snapshots the given pool as the draft. allowed is the
// workspace-level "load balancing allowed" flag, read once here rather than
// consulted as ambient state.
func NewReconciler(config models.ModelLoadBalancingConfig, secretFields []string, allowed bool) *Reconciler {
	r := &Reconciler{
		draft:        cloneConfig(config),
		originals:    make(map[string]map[string]string),
		secretFields: secretFields,
		allowed:      allowed,
	}
	for _, entry := range config.Configs {
		if entry.ID == "" {
			continue
		}
		r.originals[entry.ID] = secretSnapshot(entry.Credentials, secretFields)
	}
	return r
}

// Draft returns a copy of the current draft pool.
func (r *Reconciler) Draft() models.ModelLoadBalancingConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneConfig(r.draft)
}

// SetEnabled toggles the pool. Turning the pool on is refused as a no-op when
// the workspace does not allow load balancing; turning it off always goes
// through. Returns whether the draft changed.
func (r *Reconciler) SetEnabled(enabled bool) bool {
	if enabled && !r.allowed {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draft.Enabled == enabled {
		return false
	}
	r.draft.Enabled = enabled
	return true
}

// SetEntryEnabled flips one entry in place. The provider-managed entry is
// toggleable like any other.
func (r *Reconciler) SetEntryEnabled(index int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.draft.Configs) {
		return fmt.Errorf("entry index %d out of range", index)
	}
	r.draft.Configs[index].Enabled = enabled
	return nil
}

// AddEntry appends the entry with Enabled forced on, so a newly added entry is
// immediately live regardless of what the entry-edit sub-flow produced.
func (r *Reconciler) AddEntry(entry models.ModelLoadBalancingConfigEntry) {
	entry.Enabled = true
	entry.Credentials = cloneCredentials(entry.Credentials)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.draft.Configs = append(r.draft.Configs, entry)
}

// EditEntry replaces the entry at its original index. The provider-managed
// entry cannot be edited.
func (r *Reconciler) EditEntry(index int, entry models.ModelLoadBalancingConfigEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.draft.Configs) {
		return fmt.Errorf("entry index %d out of range", index)
	}
	current := r.draft.Configs[index]
	if current.Inherit() {
		return fmt.Errorf("entry %q is provider-managed and cannot be edited", models.InheritEntryName)
	}
	if entry.Inherit() {
		return fmt.Errorf("entry name %q is reserved", models.InheritEntryName)
	}

	entry.Credentials = cloneCredentials(entry.Credentials)
	r.draft.Configs[index] = entry
	return nil
}

// RemoveEntry drops the entry at index. The provider-managed entry cannot be
// removed.
func (r *Reconciler) RemoveEntry(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.draft.Configs) {
		return fmt.Errorf("entry index %d out of range", index)
	}
	if r.draft.Configs[index].Inherit() {
		return fmt.Errorf("entry %q is provider-managed and cannot be removed", models.InheritEntryName)
	}
	r.draft.Configs = append(r.draft.Configs[:index], r.draft.Configs[index+1:]...)
	return nil
}

// ClearCooldown is invoked on cooldown-timer expiry for one entry. TTL is
// removed entirely rather than zeroed so a future cooldown starts from a
// fresh value.
func (r *Reconciler) ClearCooldown(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index < 0 || index >= len(r.draft.Configs) {
		return fmt.Errorf("entry index %d out of range", index)
	}
	r.draft.Configs[index].InCooldown = false
	r.draft.Configs[index].TTL = nil
	return nil
}

// LeastKeyWarning reports the display-only warning raised when the pool is
// enabled with fewer than two enabled entries, since balancing over a single
// credential balances nothing. It never blocks a save.
func (r *Reconciler) LeastKeyWarning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.draft.Enabled {
		return false
	}
	enabled := 0
	for _, entry := range r.draft.Configs {
		if entry.Enabled {
			enabled++
		}
	}
	return enabled < 2
}

// Payload assembles the pool to submit for save or validate. Secret fields
// whose value is byte-identical to the value loaded at session open are
// replaced with the hidden-value sentinel instead of being retransmitted;
// fields the user changed in this session are sent literally. Redaction is
// idempotent: an already-redacted unchanged field stays the sentinel.
func (r *Reconciler) Payload() models.ModelLoadBalancingConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := cloneConfig(r.draft)
	for i, entry := range out.Configs {
		original := r.originals[entry.ID]
		for _, field := range r.secretFields {
			raw, ok := entry.Credentials[field]
			if !ok {
				continue
			}
			value, ok := raw.(string)
			if !ok {
				continue
			}
			if value == models.HiddenValue {
				continue
			}
			// A field absent from the snapshot has no stored value to fall
			// back on and must always be sent literally.
			if loaded, ok := original[field]; ok && loaded == value {
				out.Configs[i].Credentials[field] = models.HiddenValue
			}
		}
	}
	return out
}

func secretSnapshot(credentials map[string]any, secretFields []string) map[string]string {
	snapshot := make(map[string]string, len(secretFields))
	for _, field := range secretFields {
		if value, ok := credentials[field].(string); ok {
			snapshot[field] = value
		}
	}
	return snapshot
}

func cloneCredentials(credentials map[string]any) map[string]any {
	if credentials == nil {
		return nil
	}
	out := make(map[string]any, len(credentials))
	for k, v := range credentials {
		out[k] = v
	}
	return out
}

func cloneConfig(config models.ModelLoadBalancingConfig) models.ModelLoadBalancingConfig {
	out := models.ModelLoadBalancingConfig{
		Enabled: config.Enabled,
		Configs: make([]models.ModelLoadBalancingConfigEntry, len(config.Configs)),
	}
	for i, entry := range config.Configs {
		copied := entry
		copied.Credentials = cloneCredentials(entry.Credentials)
		if entry.TTL != nil {
			ttl := *entry.TTL
			copied.TTL = &ttl
		}
		out.Configs[i] = copied
	}
	return out
}
