package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/homegrid/gateway-client/internal/models"
	"github.com/homegrid/gateway-client/pkg/mqtt"
)

// FakeMQTTClient is an in-memory transport double that records subscriptions
// and lets tests deliver push messages straight to the registered handlers.
type FakeMQTTClient struct {
	mu       sync.Mutex
	subs     map[string]fakeSub // handle -> subscription
	unsubbed []string
}

type fakeSub struct {
	topic   string
	handler mqtt.MessageHandler
}

func NewFakeMQTTClient() *FakeMQTTClient {
	return &FakeMQTTClient{subs: make(map[string]fakeSub)}
}

func (f *FakeMQTTClient) Connect() error { return nil }

func (f *FakeMQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := uuid.New().String()
	f.subs[handle] = fakeSub{topic: topic, handler: handler}
	return handle, nil
}

func (f *FakeMQTTClient) Unsubscribe(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[handle]; ok {
		delete(f.subs, handle)
		f.unsubbed = append(f.unsubbed, handle)
	}
}

func (f *FakeMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return nil
}

func (f *FakeMQTTClient) Disconnect(quiesce uint) {}

// Deliver pushes a payload to every handler subscribed to the topic.
func (f *FakeMQTTClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handlers := []mqtt.MessageHandler{}
	for _, sub := range f.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// ActiveSubscriptions returns the number of currently registered handlers.
func (f *FakeMQTTClient) ActiveSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// MockFullStateSource is a mock implementation of the FullStateSource interface.
type MockFullStateSource struct {
	mock.Mock
}

func (m *MockFullStateSource) FetchDevices(ctx context.Context) ([]models.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Device), args.Error(1)
}

func (m *MockFullStateSource) FetchGatewaySnapshot(ctx context.Context) (*models.GatewaySnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewaySnapshot), args.Error(1)
}

// MockEnrollmentAPI is a mock implementation of the EnrollmentAPI interface.
type MockEnrollmentAPI struct {
	mock.Mock
}

func (m *MockEnrollmentAPI) BeginEnrollment(ctx context.Context) (*models.EnrollmentBeginResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EnrollmentBeginResponse), args.Error(1)
}

func (m *MockEnrollmentAPI) EnrollmentStatus(ctx context.Context) (*models.EnrollmentStatusResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EnrollmentStatusResponse), args.Error(1)
}

func (m *MockEnrollmentAPI) CancelEnrollment(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCommandAPI is a mock implementation of the CommandAPI interface.
type MockCommandAPI struct {
	mock.Mock
}

func (m *MockCommandAPI) SendDeviceCommand(ctx context.Context, deviceID int64, action string) error {
	args := m.Called(ctx, deviceID, action)
	return args.Error(0)
}

func (m *MockCommandAPI) CreateDevice(ctx context.Context, device models.NewDevice) (*models.Device, error) {
	args := m.Called(ctx, device)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockCommandAPI) RemoveDevice(ctx context.Context, deviceID int64) error {
	args := m.Called(ctx, deviceID)
	return args.Error(0)
}

func (m *MockCommandAPI) UnpairGateway(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// FakeIdentityStore is an in-memory GatewayIdentityStore.
type FakeIdentityStore struct {
	mu     sync.Mutex
	serial string
	saves  int
}

func (f *FakeIdentityStore) GetGatewaySerial() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serial
}

func (f *FakeIdentityStore) SaveGatewaySerial(serial string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serial = serial
	f.saves++
	return nil
}

func (f *FakeIdentityStore) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// MockCredentialFetcher is a mock implementation of the CredentialFetcher interface.
type MockCredentialFetcher struct {
	mock.Mock
}

func (m *MockCredentialFetcher) FetchCredentials(ctx context.Context) ([]models.Credential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Credential), args.Error(1)
}
