package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelgate/credential-engine/internal/models"
	"github.com/modelgate/credential-engine/internal/services/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeCall struct {
	op           string
	credentialID string
	model        *models.CustomModel
	payload      models.CredentialPayload
}

// fakeStore records every call and replies with a canned result. A non-nil
// block channel makes mutating calls wait, to exercise the single-flight guard.
type fakeStore struct {
	mu     sync.Mutex
	calls  []storeCall
	result *models.OperationResult
	err    error
	block  chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{result: &models.OperationResult{Result: models.ResultSuccess}}
}

func (f *fakeStore) record(call storeCall) (*models.OperationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return f.result, f.err
}

func (f *fakeStore) callOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, call := range f.calls {
		ops[i] = call.op
	}
	return ops
}

func (f *fakeStore) ProviderCredential(ctx context.Context, credentialID string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeStore) ModelCredential(ctx context.Context, credentialID string, model models.CustomModel) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeStore) AddCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return f.record(storeCall{op: "add", payload: payload})
}

func (f *fakeStore) EditCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return f.record(storeCall{op: "edit", payload: payload})
}

func (f *fakeStore) AddModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return f.record(storeCall{op: "add_model", payload: payload})
}

func (f *fakeStore) EditModelCredential(ctx context.Context, payload models.CredentialPayload) (*models.OperationResult, error) {
	return f.record(storeCall{op: "edit_model", payload: payload})
}

func (f *fakeStore) DeleteCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error) {
	return f.record(storeCall{op: "delete_credential", credentialID: credentialID, model: model})
}

func (f *fakeStore) DeleteModel(ctx context.Context, model models.CustomModel) (*models.OperationResult, error) {
	return f.record(storeCall{op: "delete_model", model: &model})
}

func (f *fakeStore) ActivateCredential(ctx context.Context, credentialID string, model *models.CustomModel) (*models.OperationResult, error) {
	return f.record(storeCall{op: "activate", credentialID: credentialID, model: model})
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

func TestActivateSingleFlight(t *testing.T) {
	fake := newFakeStore()
	fake.block = make(chan struct{})
	notifier := &recordingNotifier{}

	controller := NewController(Options{Store: fake, Notifier: notifier})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = controller.ActivateCredential(context.Background(), "cred-1", nil)
	}()

	// Wait until the first call is inside the store, then issue the second.
	require.Eventually(t, func() bool {
		return len(fake.callOps()) == 1
	}, time.Second, time.Millisecond)

	err := controller.ActivateCredential(context.Background(), "cred-1", nil)
	assert.NoError(t, err, "contended call must be a silent no-op")
	assert.Len(t, fake.callOps(), 1, "second call must not reach the store")

	close(fake.block)
	wg.Wait()
	assert.Equal(t, []string{"activate"}, fake.callOps())
	assert.Equal(t, 1, notifier.count())
}

func TestConfirmDeleteModelScoped(t *testing.T) {
	fake := newFakeStore()
	notifier := &recordingNotifier{}

	var removed []string
	controller := NewController(Options{
		Store:    fake,
		Notifier: notifier,
		OnRemove: func(credentialID string) { removed = append(removed, credentialID) },
	})

	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}
	controller.OpenConfirmDelete(nil, model)
	require.NoError(t, controller.ConfirmDelete(context.Background()))

	require.Equal(t, []string{"delete_model"}, fake.callOps())
	assert.Equal(t, "gpt-4o", fake.calls[0].model.Model)
	assert.Equal(t, []string{""}, removed, "whole-model removal reports an empty credential id")
	assert.Empty(t, controller.DeleteCredentialID())
}

func TestConfirmDeleteCredentialScoped(t *testing.T) {
	fake := newFakeStore()
	notifier := &recordingNotifier{}

	var removed []string
	controller := NewController(Options{
		Store:    fake,
		Notifier: notifier,
		OnRemove: func(credentialID string) { removed = append(removed, credentialID) },
	})

	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}
	credential := &models.Credential{CredentialID: "cred-7"}
	controller.OpenConfirmDelete(credential, model)
	assert.Equal(t, "cred-7", controller.DeleteCredentialID())

	require.NoError(t, controller.ConfirmDelete(context.Background()))

	require.Equal(t, []string{"delete_credential"}, fake.callOps())
	assert.Equal(t, "cred-7", fake.calls[0].credentialID)
	require.NotNil(t, fake.calls[0].model)
	assert.Equal(t, "gpt-4o", fake.calls[0].model.Model)
	assert.Equal(t, []string{"cred-7"}, removed)
}

func TestDeleteCarriesItsOwnTarget(t *testing.T) {
	fake := newFakeStore()
	notifier := &recordingNotifier{}

	var removed []string
	controller := NewController(Options{
		Store:    fake,
		Notifier: notifier,
		OnRemove: func(credentialID string) { removed = append(removed, credentialID) },
	})

	// Back-to-back deletes of different credentials must each remove their
	// own target, regardless of what the confirmation prompt has recorded.
	controller.OpenConfirmDelete(&models.Credential{CredentialID: "cred-b"}, nil)
	require.NoError(t, controller.Delete(context.Background(), "cred-a", nil))
	require.NoError(t, controller.Delete(context.Background(), "cred-b", nil))

	require.Equal(t, []string{"delete_credential", "delete_credential"}, fake.callOps())
	assert.Equal(t, "cred-a", fake.calls[0].credentialID)
	assert.Equal(t, "cred-b", fake.calls[1].credentialID)
	assert.Equal(t, []string{"cred-a", "cred-b"}, removed)
}

func TestDeleteResolvesByPresence(t *testing.T) {
	fake := newFakeStore()
	controller := NewController(Options{Store: fake, Notifier: &recordingNotifier{}})

	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}
	require.NoError(t, controller.Delete(context.Background(), "", model))
	require.NoError(t, controller.Delete(context.Background(), "", nil), "no target at all is a no-op")

	require.Equal(t, []string{"delete_model"}, fake.callOps())
	assert.Equal(t, "gpt-4o", fake.calls[0].model.Model)
}

func TestConfirmDeleteWithoutTargetIsNoOp(t *testing.T) {
	fake := newFakeStore()
	controller := NewController(Options{Store: fake, Notifier: &recordingNotifier{}})

	require.NoError(t, controller.ConfirmDelete(context.Background()))
	assert.Empty(t, fake.callOps())
}

func TestCloseConfirmDeletePreservesModel(t *testing.T) {
	fake := newFakeStore()
	controller := NewController(Options{Store: fake, Notifier: &recordingNotifier{}})

	model := &models.CustomModel{Model: "claude-sonnet", ModelType: "llm"}
	controller.OpenConfirmDelete(&models.Credential{CredentialID: "cred-1"}, model)
	controller.CloseConfirmDelete()

	assert.Empty(t, controller.DeleteCredentialID())

	// A later delete with no credential id still targets the model.
	require.NoError(t, controller.ConfirmDelete(context.Background()))
	require.Equal(t, []string{"delete_model"}, fake.callOps())
	assert.Equal(t, "claude-sonnet", fake.calls[0].model.Model)
}

func TestSaveCredentialRouting(t *testing.T) {
	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}

	tests := []struct {
		name    string
		payload models.CredentialPayload
		wantOp  string
	}{
		{
			name:    "no credential id selects add",
			payload: models.CredentialPayload{Credentials: map[string]any{"api_key": "x"}},
			wantOp:  "add",
		},
		{
			name:    "credential id selects edit",
			payload: models.CredentialPayload{CredentialID: "c", Credentials: map[string]any{"api_key": "y"}},
			wantOp:  "edit",
		},
		{
			name:    "model selects model-scoped add",
			payload: models.CredentialPayload{Model: model, Credentials: map[string]any{"api_key": "x"}},
			wantOp:  "add_model",
		},
		{
			name:    "credential id and model select model-scoped edit",
			payload: models.CredentialPayload{CredentialID: "c", Model: model, Credentials: map[string]any{"api_key": "y"}},
			wantOp:  "edit_model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeStore()
			controller := NewController(Options{Store: fake, Notifier: &recordingNotifier{}})

			require.NoError(t, controller.SaveCredential(context.Background(), tt.payload))
			assert.Equal(t, []string{tt.wantOp}, fake.callOps())
		})
	}
}

func TestNonSuccessResultDoesNotNotify(t *testing.T) {
	fake := newFakeStore()
	fake.result = &models.OperationResult{Result: "failed", Error: "invalid key"}
	notifier := &recordingNotifier{}

	var updates int
	controller := NewController(Options{
		Store:    fake,
		Notifier: notifier,
		OnUpdate: func() { updates++ },
	})

	err := controller.SaveCredential(context.Background(), models.CredentialPayload{
		Credentials: map[string]any{"api_key": "x"},
	})
	assert.NoError(t, err, "a non-success result is not an error")
	assert.Equal(t, 0, notifier.count())
	assert.Equal(t, 0, updates)
}

func TestTransportErrorReleasesGuard(t *testing.T) {
	fake := newFakeStore()
	fake.err = errors.New("connection reset")
	controller := NewController(Options{Store: fake, Notifier: &recordingNotifier{}})

	err := controller.SaveCredential(context.Background(), models.CredentialPayload{
		Credentials: map[string]any{"api_key": "x"},
	})
	assert.Error(t, err)

	// The guard must be released even after a failed call.
	fake.err = nil
	require.NoError(t, controller.SaveCredential(context.Background(), models.CredentialPayload{
		Credentials: map[string]any{"api_key": "x"},
	}))
	assert.Equal(t, []string{"add", "add"}, fake.callOps())
}

func TestOpenModalForwardsConfigMethod(t *testing.T) {
	var gotMethod models.ConfigurationMethod
	var gotModel *models.CustomModel

	controller := NewController(Options{
		Store:               newFakeStore(),
		Notifier:            &recordingNotifier{},
		ConfigurationMethod: models.ConfigurationMethodCustomizableModel,
		OpenModal: func(model *models.CustomModel, credential *models.Credential, configMethod models.ConfigurationMethod) {
			gotModel = model
			gotMethod = configMethod
		},
	})

	model := &models.CustomModel{Model: "gpt-4o", ModelType: "llm"}
	controller.OpenModal(model, nil)

	assert.Equal(t, models.ConfigurationMethodCustomizableModel, gotMethod)
	assert.Equal(t, model, gotModel)
}
