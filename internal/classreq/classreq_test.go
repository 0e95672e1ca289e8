package classreq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-usbtmc/internal/uapi"
	"github.com/ehrlich-b/go-usbtmc/usbtmctest"
)

func testContext(t *usbtmctest.MockTransport) *Context {
	return &Context{
		Transport:   t,
		BulkInAddr:  0x81,
		BulkOutAddr: 0x02,
		Ifnum:       0,
		IOBufSize:   64,
		Timeout:     time.Second,
	}
}

func TestAbortBulkInSuccessPath(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()
	ts.BTagLastRead = 3

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkIn, []byte{uapi.StatusSuccess, 0})
	mt.QueueBulkIn([]byte{1, 2, 3}) // short packet terminates the drain
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkInStatus,
		[]byte{uapi.StatusSuccess, 0, 0, 0, 0, 0, 0, 0})

	require.NoError(t, AbortBulkIn(ctx, ts))

	calls := mt.ControlCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, uint16(3), calls[0].Value, "INITIATE_ABORT_BULK_IN should carry bTagLastRead as wValue")
	assert.Equal(t, byte(uapi.TypeClass|uapi.RecipEndpoint), calls[0].RequestType, "abort requests address the endpoint recipient")
	assert.Equal(t, uint16(0x81), calls[0].Index, "abort-in requests address the bulk-in endpoint")
}

func TestAbortBulkInFailedInitiateIsNoOp(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkIn, []byte{uapi.StatusFailed, 0})

	assert.NoError(t, AbortBulkIn(ctx, ts), "STATUS_FAILED on INITIATE should be treated as a no-op success")
	assert.Len(t, mt.ControlCalls(), 1, "no drain/poll should follow a FAILED initiate")
}

func TestAbortBulkInPendingThenSuccess(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkIn, []byte{uapi.StatusSuccess, 0})
	mt.QueueBulkIn([]byte{1, 2, 3}) // first drain
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkInStatus,
		[]byte{uapi.StatusPending, 1, 0, 0, 0, 0, 0, 0})
	mt.QueueBulkIn([]byte{4, 5}) // drain triggered by PENDING buffer[1]==1
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkInStatus,
		[]byte{uapi.StatusSuccess, 0, 0, 0, 0, 0, 0, 0})

	require.NoError(t, AbortBulkIn(ctx, ts))
}

func TestAbortBulkInDrainExhaustionIsProtocolError(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ctx.IOBufSize = 4
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkIn, []byte{uapi.StatusSuccess, 0})
	for i := 0; i < 101; i++ {
		mt.QueueBulkIn([]byte{1, 2, 3, 4}) // always full-size: drain never sees a short packet
	}

	err := AbortBulkIn(ctx, ts)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestAbortBulkOutSuccessPath(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()
	ts.BTagLastWrite = 9

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkOut, []byte{uapi.StatusSuccess, 0})
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqCheckAbortBulkOutStatus,
		[]byte{uapi.StatusSuccess, 0, 0, 0, 0, 0, 0, 0})

	require.NoError(t, AbortBulkOut(ctx, ts))
	in, out := mt.ClearHaltCalls()
	assert.Equal(t, 0, in)
	assert.Equal(t, 1, out, "ABORT_BULK_OUT clears the bulk-out halt on success")
}

func TestAbortBulkOutUnexpectedInitiateStatusIsError(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipEndpoint, uapi.ReqInitiateAbortBulkOut, []byte{0x42, 0})

	err := AbortBulkOut(ctx, ts)
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestClearSuccessPath(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqInitiateClear, []byte{uapi.StatusSuccess, 0})
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqCheckClearStatus, []byte{uapi.StatusSuccess, 0})

	require.NoError(t, Clear(ctx, ts))
	_, out := mt.ClearHaltCalls()
	assert.Equal(t, 1, out)

	calls := mt.ControlCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, byte(uapi.TypeClass|uapi.RecipIface), calls[0].RequestType, "clear requests address the interface recipient")
}

func TestClearPendingDrainsThenSucceeds(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)
	ts := uapi.NewTagState()

	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqInitiateClear, []byte{uapi.StatusSuccess, 0})
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqCheckClearStatus, []byte{uapi.StatusPending, 1})
	mt.QueueBulkIn([]byte{1, 2, 3})
	mt.QueueControlReply(uapi.TypeClass|uapi.RecipIface, uapi.ReqCheckClearStatus, []byte{uapi.StatusSuccess, 0})

	require.NoError(t, Clear(ctx, ts))
}

func TestClearInAndOutHalt(t *testing.T) {
	mt := usbtmctest.NewMockTransport()
	ctx := testContext(mt)

	require.NoError(t, ClearInHalt(ctx))
	require.NoError(t, ClearOutHalt(ctx))

	in, out := mt.ClearHaltCalls()
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, out)
}
