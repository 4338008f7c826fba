package serialdev

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/scanlog/internal/lms"
)

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	opts, err = PortOptions{Parity: "even"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", opts.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

func TestLineDeviceLifecycle(t *testing.T) {
	port := NewTestablePort()
	dev := NewLineDevice(port)

	require.NoError(t, dev.Initialize(38400))
	port.AddReadData("1,2,3\n" +
		"#operating_mode=37\n#measuring_mode=5\n#measuring_units=0\n" +
		"#scan_resolution=0.5\n#scan_angle=180\n#unknown=1\n#end\n")

	cfg, err := dev.Config()
	require.NoError(t, err)
	assert.Equal(t, lms.DeviceConfig{
		OperatingMode:  37,
		MeasuringMode:  5,
		MeasuringUnits: 0,
		ScanResolution: 0.5,
		ScanAngle:      180,
	}, cfg)

	port.AddReadData("\n10, 20, 30\n#status=ok\n40,50\n")
	scan, err := dev.GetScan()
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, scan)
	scan, err = dev.GetScan()
	require.NoError(t, err)
	assert.Equal(t, []int{40, 50}, scan)

	require.NoError(t, dev.Uninitialize())
	assert.Equal(t, "INIT 38400\nCONFIG?\nSTOP\n", port.Written())
	assert.True(t, port.Closed)
	assert.ErrorIs(t, dev.Uninitialize(), lms.ErrDeviceClosed)
}

func TestLineDeviceGetScanUnblocksOnClose(t *testing.T) {
	port := NewTestablePort()
	dev := NewLineDevice(port)

	errc := make(chan error, 1)
	go func() {
		_, err := dev.GetScan()
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dev.Uninitialize())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, lms.ErrDeviceClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("GetScan did not return after close")
	}
}

func TestLineDeviceErrors(t *testing.T) {
	port := NewTestablePort()
	port.WriteError = errors.New("io error")
	dev := NewLineDevice(port)
	assert.Error(t, dev.Initialize(9600))

	port.AddReadData("#scan_angle=wide\n")
	_, err := dev.Config()
	assert.Error(t, err)

	port.AddReadData("#broken\n")
	_, err = dev.Config()
	assert.ErrorContains(t, err, "malformed")

	port.AddReadData("1,x\n")
	_, err = dev.GetScan()
	assert.Error(t, err)
}

func TestLineDeviceWithWorker(t *testing.T) {
	port := NewTestablePort()
	port.AddReadData("#measuring_mode=1\n#end\n5,6\n7,8\n")
	dev := NewLineDevice(port)

	w := lms.NewWorker(dev, lms.WorkerOptions{Baud: 19200})
	w.Start(t.Context())
	require.NoError(t, w.WaitInitialized(t.Context()))

	require.Eventually(t, func() bool { return w.Queue().Len() == 2 }, 5*time.Second, 5*time.Millisecond)
	w.Stop()
	port.Close()
	<-w.Done()

	info, ok := w.Info()
	require.True(t, ok)
	assert.Equal(t, 8.0, info.MaxDistance)
	assert.NoError(t, w.Err())
}
