package usbfs

import "unsafe"

// Linux ioctl number encoding (asm-generic/ioctl.h), grounded on the real
// usbdevfs ioctl table: direction/type/number/size packed into the
// request value passed to ioctl(2).
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14
	iocDirBits  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func iowr(typ, nr byte, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, uintptr(typ), uintptr(nr), size)
}

func ior(typ, nr byte, size uintptr) uintptr {
	return ioc(iocRead, uintptr(typ), uintptr(nr), size)
}

func iow(typ, nr byte, size uintptr) uintptr {
	return ioc(iocWrite, uintptr(typ), uintptr(nr), size)
}

func io(typ, nr byte) uintptr {
	return ioc(iocNone, uintptr(typ), uintptr(nr), 0)
}

// usbdevfs ioctl requests (linux/usbdevice_fs.h), type 'U' (0x55).
var (
	usbdevfsControl        = iowr('U', 0, unsafe.Sizeof(ctrlTransfer{}))
	usbdevfsBulk           = iowr('U', 2, unsafe.Sizeof(bulkTransfer{}))
	usbdevfsResetEP        = ior('U', 3, unsafe.Sizeof(uint32(0)))
	usbdevfsSubmitURB      = ior('U', 10, unsafe.Sizeof(urb{}))
	usbdevfsDiscardURB     = io('U', 11)
	usbdevfsReapURB        = iow('U', 12, unsafe.Sizeof(uintptr(0)))
	usbdevfsReapURBNDelay  = iow('U', 13, unsafe.Sizeof(uintptr(0)))
	usbdevfsClaimInterface = ior('U', 15, unsafe.Sizeof(uint32(0)))
	usbdevfsReleaseIface   = ior('U', 16, unsafe.Sizeof(uint32(0)))
	usbdevfsClearHalt      = ior('U', 21, unsafe.Sizeof(uint32(0)))
	usbdevfsReset          = io('U', 20)
)

// ctrlTransfer mirrors struct usbdevfs_ctrltransfer: Timeout sits at
// offset 8, directly after wLength; the compiler inserts the four pad
// bytes the kernel has before the 8-aligned data pointer.
type ctrlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        uint64 // userspace pointer, widened to 64 bits
}

// bulkTransfer mirrors struct usbdevfs_bulktransfer.
type bulkTransfer struct {
	Endpoint uint32
	Length   uint32
	Timeout  uint32
	Data     uint64
}

// urb mirrors struct usbdevfs_urb, used for interrupt-in submit/reap.
type urb struct {
	Type          uint8
	Endpoint      uint8
	Status        int32
	Flags         uint32
	Buffer        uint64
	BufferLength  int32
	ActualLength  int32
	StartFrame    int32
	StreamIDOrNum int32
	ErrorCount    int32
	SigNumber     uint32
	UserContext   uint64
}

// URB types (usbdevfs_urb.Type).
const (
	urbTypeIsochronous = 0
	urbTypeInterrupt   = 1
	urbTypeControl     = 2
	urbTypeBulk        = 3
)
