package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ehrlich-b/go-usbtmc"
	"github.com/ehrlich-b/go-usbtmc/internal/logging"
	"github.com/ehrlich-b/go-usbtmc/internal/usbfs"
)

func main() {
	var (
		path      = flag.String("dev", "/dev/bus/usb/001/002", "usbdevfs node for the USBTMC interface")
		ifnum     = flag.Uint("ifnum", 0, "interface number")
		bulkIn    = flag.Uint("bulk-in", 0x81, "bulk-in endpoint address")
		bulkOut   = flag.Uint("bulk-out", 0x02, "bulk-out endpoint address")
		intrIn    = flag.Uint("intr-in", 0x83, "interrupt-in endpoint address (0 to disable)")
		intrMax   = flag.Int("intr-max-packet", 8, "interrupt-in endpoint max packet size")
		cmdStr    = flag.String("cmd", "*IDN?\n", "SCPI command to write before reading the reply")
		verbose   = flag.Bool("v", false, "verbose protocol logging")
		timeout   = flag.Duration("timeout", usbtmc.DefaultUSBTimeout, "per-transfer timeout")
		replySize = flag.Int("reply-size", 256, "max reply size to request")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	transport, err := usbfs.Open(usbfs.Config{
		Path:           *path,
		BulkInAddr:     byte(*bulkIn),
		BulkOutAddr:    byte(*bulkOut),
		IntrInAddr:     byte(*intrIn),
		HasInterruptIn: *intrIn != 0,
	})
	if err != nil {
		log.Fatalf("open %s: %v", *path, err)
	}

	dev, err := usbtmc.Attach(usbtmc.AttachConfig{
		Transport:     transport,
		Ifnum:         uint16(*ifnum),
		BulkInAddr:    byte(*bulkIn),
		BulkOutAddr:   byte(*bulkOut),
		HasIntr:       *intrIn != 0,
		IntrInAddr:    byte(*intrIn),
		IntrMaxPacket: *intrMax,
		Timeout:       *timeout,
		IOBufferSize:  usbtmc.DefaultIOBufferSize,
		Logger:        logger,
		Observer:      usbtmc.NewMetrics(),
	})
	if err != nil {
		log.Fatalf("attach: %v", err)
	}
	defer dev.Disconnect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		dev.Disconnect()
	}()

	h := dev.Open()
	defer h.Close()

	raw, coalesced := dev.Capabilities()
	fmt.Printf("capabilities: interface=%#02x device=%#02x usb488=%#02x\n", raw[0], raw[1], coalesced)

	buf := make([]byte, *replySize)
	n, err := h.Query(*cmdStr, buf)
	if err != nil {
		log.Fatalf("query %q: %v", *cmdStr, err)
	}
	fmt.Printf("reply (%d bytes): %q\n", n, buf[:n])

	stb, err := h.ReadSTB()
	if err != nil {
		log.Fatalf("READ_STB: %v", err)
	}
	fmt.Printf("status byte: %#02x\n", stb)
}
