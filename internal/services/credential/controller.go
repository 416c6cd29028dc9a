package credential

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/notify"
	"github.com/modelgate/credential-engine/internal/services/store"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ModalOpener renders the add/edit credential form and eventually calls back
// into SaveCredential.
type ModalOpener func(model *models.CustomModel, credential *models.Credential, configMethod models.ConfigurationMethod)

// Options configures a Controller. Store and Notifier are required; the
// callbacks are optional.
type Options struct {
	Store               store.CredentialStore
	Notifier            notify.Notifier
	ConfigurationMethod models.ConfigurationMethod

	// OnUpdate is invoked after any successful mutation so list-level UI can
	// refetch.
	OnUpdate func()
	// RefreshModel is invoked after a successful delete to refresh the
	// model/provider cache.
	RefreshModel func()
	// OnRemove receives the removed credential id, or "" when a whole model
	// was removed, letting a list reconcile optimistically.
	OnRemove func(credentialID string)
	// OpenModal delegates form rendering to the host.
	OpenModal ModalOpener
}

// Controller orchestrates credential add/edit/delete/activate against the
// store. At most one mutating action is in flight per instance: a call
// arriving while another is outstanding is dropped silently, without queuing
// and without error, so rapid double-clicks cannot duplicate network-level
// side effects.
type Controller struct {
	store        store.CredentialStore
	notifier     notify.Notifier
	configMethod models.ConfigurationMethod
	onUpdate     func()
	refreshModel func()
	onRemove     func(credentialID string)
	openModal    ModalOpener

	doingAction atomic.Bool

	mu                 sync.Mutex
	deleteCredentialID string
	pending            models.PendingOperation
}

func NewController(opts Options) *Controller {
	return &Controller{
		store:        opts.Store,
		notifier:     opts.Notifier,
		configMethod: opts.ConfigurationMethod,
		onUpdate:     opts.OnUpdate,
		refreshModel: opts.RefreshModel,
		onRemove:     opts.OnRemove,
		openModal:    opts.OpenModal,
	}
}

// OpenConfirmDelete records the delete target for the confirmation prompt.
// Only the arguments actually provided overwrite the pending reference, so a
// model recorded earlier survives a credential-only call and vice versa.
func (c *Controller) OpenConfirmDelete(credential *models.Credential, model *models.CustomModel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if credential != nil {
		c.pending.CredentialID = credential.CredentialID
		c.deleteCredentialID = credential.CredentialID
	}
	if model != nil {
		c.pending.Model = model
	}
}

// CloseConfirmDelete cancels the confirmation prompt. The pending model
// reference is left in place: a later delete without a credential id still has
// a model to target.
func (c *Controller) CloseConfirmDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteCredentialID = ""
	c.pending.CredentialID = ""
}

// DeleteCredentialID returns the credential id surfaced for confirmation, or
// "" when no prompt is open.
func (c *Controller) DeleteCredentialID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteCredentialID
}

// ActivateCredential makes the credential the active one for its scope.
// Contended calls are silent no-ops.
func (c *Controller) ActivateCredential(ctx context.Context, credentialID string, model *models.CustomModel) error {
	if !c.doingAction.CompareAndSwap(false, true) {
		fiberlog.Debugf("Controller: activate dropped, another action in flight")
		return nil
	}
	defer c.doingAction.Store(false)

	result, err := c.store.ActivateCredential(ctx, credentialID, model)
	if err != nil {
		return err
	}

	if result.Success() {
		c.notifier.Notify(notify.Notification{Type: notify.TypeSuccess, Message: "Updated successfully"})
		if c.onUpdate != nil {
			c.onUpdate()
		}
	}
	return nil
}

// ConfirmDelete resolves the pending confirmation. The delete target is
// resolved by presence: a pending model with no credential id selects the
// model-scoped delete; otherwise the credential-scoped delete carries
// whichever model is attached. With nothing pending this is a no-op close.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	if !c.doingAction.CompareAndSwap(false, true) {
		fiberlog.Debugf("Controller: delete dropped, another action in flight")
		return nil
	}
	defer c.doingAction.Store(false)

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	var (
		result    *models.OperationResult
		err       error
		removedID string
	)
	switch {
	case pending.CredentialID == "" && pending.Model == nil:
		// Opened and cancelled without ever setting a target.
		c.CloseConfirmDelete()
		return nil
	case pending.CredentialID == "" && pending.Model != nil:
		result, err = c.store.DeleteModel(ctx, *pending.Model)
		removedID = ""
	default:
		result, err = c.store.DeleteCredential(ctx, pending.CredentialID, pending.Model)
		removedID = pending.CredentialID
	}
	if err != nil {
		return err
	}

	if result.Success() {
		c.notifyRemoved(removedID)

		c.mu.Lock()
		c.deleteCredentialID = ""
		c.pending = models.PendingOperation{}
		c.mu.Unlock()
	}
	return nil
}

// Delete removes the given target directly, without touching the pending
// confirmation reference: the target travels with the call, so concurrent
// callers cannot overwrite each other's. The confirmation flow keeps its own
// gesture-scoped state. Resolution mirrors ConfirmDelete: no credential id
// with a model selects the model-scoped delete; with neither this is a no-op.
// Contended calls are silent no-ops.
func (c *Controller) Delete(ctx context.Context, credentialID string, model *models.CustomModel) error {
	if !c.doingAction.CompareAndSwap(false, true) {
		fiberlog.Debugf("Controller: delete dropped, another action in flight")
		return nil
	}
	defer c.doingAction.Store(false)

	var (
		result *models.OperationResult
		err    error
	)
	switch {
	case credentialID == "" && model == nil:
		return nil
	case credentialID == "" && model != nil:
		result, err = c.store.DeleteModel(ctx, *model)
	default:
		result, err = c.store.DeleteCredential(ctx, credentialID, model)
	}
	if err != nil {
		return err
	}

	if result.Success() {
		c.notifyRemoved(credentialID)
	}
	return nil
}

func (c *Controller) notifyRemoved(removedID string) {
	c.notifier.Notify(notify.Notification{Type: notify.TypeSuccess, Message: "Removed successfully"})
	if c.onUpdate != nil {
		c.onUpdate()
	}
	if c.refreshModel != nil {
		c.refreshModel()
	}
	if c.onRemove != nil {
		c.onRemove(removedID)
	}
}

// SaveCredential routes the payload to the store: presence of CredentialID
// selects edit over add, presence of Model selects the model-scoped variant.
// Only a success result notifies; any other result means nothing happened and
// is left for the caller to surface.
func (c *Controller) SaveCredential(ctx context.Context, payload models.CredentialPayload) error {
	if !c.doingAction.CompareAndSwap(false, true) {
		fiberlog.Debugf("Controller: save dropped, another action in flight")
		return nil
	}
	defer c.doingAction.Store(false)

	var (
		result *models.OperationResult
		err    error
	)
	switch {
	case payload.CredentialID != "" && payload.Model != nil:
		result, err = c.store.EditModelCredential(ctx, payload)
	case payload.CredentialID != "":
		result, err = c.store.EditCredential(ctx, payload)
	case payload.Model != nil:
		result, err = c.store.AddModelCredential(ctx, payload)
	default:
		result, err = c.store.AddCredential(ctx, payload)
	}
	if err != nil {
		return err
	}

	if result.Success() {
		c.notifier.Notify(notify.Notification{Type: notify.TypeSuccess, Message: "Saved successfully"})
		if c.onUpdate != nil {
			c.onUpdate()
		}
	}
	return nil
}

// OpenModal delegates to the modal host, forwarding the configuration-method
// context captured at construction.
func (c *Controller) OpenModal(model *models.CustomModel, credential *models.Credential) {
	if c.openModal == nil {
		return
	}
	c.openModal(model, credential, c.configMethod)
}
