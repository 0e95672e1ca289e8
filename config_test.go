package usbtmc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
	"github.com/ehrlich-b/go-usbtmc/usbtmctest"
)

func attachWithCaps(t *testing.T, iface488, dev488, tmcDevCaps byte) (*Device, *usbtmctest.MockTransport) {
	t.Helper()
	mt := usbtmctest.NewMockTransport()
	reply := make([]byte, 0x18)
	reply[0] = uapi.StatusSuccess
	reply[uapi.CapsOffTMCDev] = tmcDevCaps
	reply[uapi.CapsOff488Iface] = iface488
	reply[uapi.CapsOff488Dev] = dev488
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqGetCapabilities, reply)

	dev, err := Attach(AttachConfig{
		Transport:    mt,
		Ifnum:        0,
		BulkInAddr:   0x81,
		BulkOutAddr:  0x02,
		Timeout:      time.Second,
		IOBufferSize: 64,
	})
	require.NoError(t, err)
	t.Cleanup(dev.Disconnect)
	return dev, mt
}

func TestClampConfig(t *testing.T) {
	timeout, bufSize := ClampConfig(100*time.Millisecond, 100)
	assert.Equal(t, MinTimeout, timeout, "timeout below the floor clamps up")
	assert.Equal(t, MinIOBufferSize, bufSize, "buffer below the floor clamps up")

	_, bufSize = ClampConfig(time.Second, 1023)
	assert.Equal(t, 1020, bufSize, "buffer size rounds down to a multiple of 4")
}

func TestSetTimeoutIdempotence(t *testing.T) {
	dev, _ := attachWithCaps(t, uapi.Cap488Simple, 0, 0)

	require.NoError(t, dev.SetTimeout(700*time.Millisecond))
	assert.Equal(t, 700*time.Millisecond, dev.GetTimeout())
	assert.Equal(t, 700*time.Millisecond, dev.GetTimeout(), "repeated gets observe the last set")

	err := dev.SetTimeout(100 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalidArgument))
	assert.Equal(t, 700*time.Millisecond, dev.GetTimeout(), "a rejected set leaves the stored value unchanged")
}

func TestConfigureTermCharRequiresCapability(t *testing.T) {
	dev, _ := attachWithCaps(t, uapi.Cap488Simple, 0, 0)
	h := dev.Open()
	defer h.Close()

	err := h.ConfigureTermChar('\r', true)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalidArgument))

	require.NoError(t, h.ConfigureTermChar('\r', false), "setting the character without enabling needs no capability")
}

func TestConfigureTermCharOnDeviceFlowsToNewHandles(t *testing.T) {
	dev, _ := attachWithCaps(t, uapi.Cap488Simple, 0, uapi.CapDevTermChar)

	require.NoError(t, dev.ConfigureTermChar(';', true))

	h := dev.Open()
	defer h.Close()
	assert.Equal(t, byte(';'), h.termChar)
	assert.True(t, h.termCharEnabled)
}

func TestSimpleOpsRequireCapability(t *testing.T) {
	dev, _ := attachWithCaps(t, 0, 0, 0)
	h := dev.Open()
	defer h.Close()

	for _, op := range []func() error{
		func() error { return h.RenControl(true) },
		h.GoToLocal,
		h.LocalLockout,
	} {
		err := op()
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrCodeInvalidArgument), "missing SIMPLE capability must surface as invalid argument")
	}
}

func TestTriggerAdvancesBulkTag(t *testing.T) {
	dev, mt := attachWithCaps(t, uapi.Cap488Trigger, 0, 0)
	h := dev.Open()
	defer h.Close()

	require.NoError(t, h.Trigger())
	require.NoError(t, h.Trigger())

	calls := mt.BulkOutCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, byte(uapi.MsgTrigger), calls[0][0])
	assert.Equal(t, byte(1), calls[0][1])
	assert.Equal(t, byte(2), calls[1][1], "each trigger consumes one bulk tag")
	assert.Equal(t, byte(2), dev.tags.BTagLastWrite)
}

func TestIndicatorPulse(t *testing.T) {
	dev, mt := attachWithCaps(t, uapi.Cap488Simple, 0, 0)
	h := dev.Open()
	defer h.Close()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqIndicatorPulse, []byte{uapi.StatusSuccess})
	require.NoError(t, h.IndicatorPulse())

	calls := mt.ControlCalls()
	last := calls[len(calls)-1]
	assert.Equal(t, byte(uapi.ReqIndicatorPulse), last.Request)
}

func TestControlPassthroughZeroLength(t *testing.T) {
	dev, mt := attachWithCaps(t, uapi.Cap488Simple, 0, 0)
	h := dev.Open()
	defer h.Close()

	mt.QueueControlReply(uapi.TypeClass|uapi.DirIn, 0x42, []byte{0x01})

	n, err := h.ControlPassthrough(CtrlRequest{
		BRequestType: uapi.DirIn | uapi.TypeClass,
		BRequest:     0x42,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a zero-length request is issued with a one-byte scratch buffer")
}

func TestSetEOMAffectsSubsequentWrites(t *testing.T) {
	dev, mt := attachWithCaps(t, uapi.Cap488Simple, 0, 0)
	h := dev.Open()
	defer h.Close()

	dev.SetEOM(false)
	_, err := h.Write([]byte("abc"))
	require.NoError(t, err)

	dev.SetEOM(true)
	_, err = h.Write([]byte("def"))
	require.NoError(t, err)

	calls := mt.BulkOutCalls()
	require.Len(t, calls, 2)
	assert.False(t, uapi.Decode(calls[0]).EOM())
	assert.True(t, uapi.Decode(calls[1]).EOM())
}
