package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFactory(t *testing.T, st Storage) *Factory {
	t.Helper()
	r := NewRegistry()
	if st != nil {
		require.Nil(t, r.RegisterStorage(st))
	}
	res, err := NewFactory(r)
	require.Nil(t, err)
	return res
}

func TestFactory_GetStorage(t *testing.T) {
	sm := newStorageMock("local")
	sm.On("ValidateConfig", mock.Anything).Return(nil)
	sm.On("TestConnection", mock.Anything, mock.Anything).Return(nil)
	sm.On("Connect", mock.Anything, mock.Anything).Return(nil)
	f := newFactory(t, sm)
	p, err := f.GetStorage(context.Background(), "local", map[string]string{"path": "/olia"})
	require.Nil(t, err)
	assert.NotNil(t, p)
	sm.AssertCalled(t, "Connect", mock.Anything, mock.Anything)
}

func TestFactory_GetStorage_FailUnknown(t *testing.T) {
	f := newFactory(t, nil)
	_, err := f.GetStorage(context.Background(), "olia", nil)
	assert.NotNil(t, err)
}

func TestFactory_GetStorage_FailValidate(t *testing.T) {
	sm := newStorageMock("local")
	sm.On("ValidateConfig", mock.Anything).Return(fmt.Errorf("olia err"))
	f := newFactory(t, sm)
	_, err := f.GetStorage(context.Background(), "local", nil)
	assert.NotNil(t, err)
	sm.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}

func TestFactory_GetStorage_FailTest(t *testing.T) {
	sm := newStorageMock("local")
	sm.On("ValidateConfig", mock.Anything).Return(nil)
	sm.On("TestConnection", mock.Anything, mock.Anything).Return(fmt.Errorf("olia err"))
	f := newFactory(t, sm)
	_, err := f.GetStorage(context.Background(), "local", nil)
	assert.NotNil(t, err)
	sm.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}

type cloningStorage struct {
	storageMock
	clones int
}

func (c *cloningStorage) New() Storage {
	c.clones++
	res := newStorageMock("cloning")
	res.On("ValidateConfig", mock.Anything).Return(nil)
	res.On("TestConnection", mock.Anything, mock.Anything).Return(nil)
	res.On("Connect", mock.Anything, mock.Anything).Return(nil)
	return res
}

func TestFactory_GetStorage_ClonesPrototype(t *testing.T) {
	proto := &cloningStorage{}
	proto.On("Type").Return("cloning")
	f := newFactory(t, proto)
	p1, err := f.GetStorage(context.Background(), "cloning", nil)
	require.Nil(t, err)
	p2, err := f.GetStorage(context.Background(), "cloning", nil)
	require.Nil(t, err)
	assert.Equal(t, 2, proto.clones)
	assert.NotSame(t, p1, p2)
	// the prototype itself is never connected
	proto.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything)
}

func TestNewFactory_Fail(t *testing.T) {
	_, err := NewFactory(nil)
	assert.NotNil(t, err)
}
