//go:build linux

package input

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	Value      int32
	Min        int32
	Max        int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint32) uintptr {
	return uintptr(dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

// EVIOCGABS(abs) = _IOR('E', 0x40 + abs, struct input_absinfo)
func eviocgabs(code int) uintptr {
	return ioc(iocRead, 'E', uint32(0x40+code), uint32(unsafe.Sizeof(absInfo{})))
}

// EVIOCGRAB = _IOW('E', 0x90, int)
func eviocgrab() uintptr {
	return ioc(iocWrite, 'E', 0x90, uint32(unsafe.Sizeof(int32(0))))
}

func readAbsRange(fd, code int) (AbsRange, error) {
	var info absInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgabs(code), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return AbsRange{}, errno
	}
	return AbsRange{Min: info.Min, Max: info.Max}, nil
}

// Evdev reads a Linux event device such as /dev/input/event2.
type Evdev struct {
	fd            int
	path          string
	xr, yr        AbsRange
	width, height int
}

// OpenEvdev opens path and reads its multi-touch axis ranges. grab takes the device
// exclusively so its events do not also reach the desktop.
func OpenEvdev(path string, width, height int, grab bool) (*Evdev, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	e := &Evdev{fd: fd, path: path, width: width, height: height}

	// Devices without multi-touch axes still deliver relative motion.
	if r, err := readAbsRange(fd, absMTPositionX); err == nil {
		e.xr = r
	}
	if r, err := readAbsRange(fd, absMTPositionY); err == nil {
		e.yr = r
	}

	if grab {
		one := int32(1)
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgrab(), uintptr(unsafe.Pointer(&one))); errno != 0 {
			unix.Close(fd)
			return nil, fmt.Errorf("grab %s: %w", path, errno)
		}
	}
	return e, nil
}

// Run polls the device until ctx is cancelled.
func (e *Evdev) Run(ctx context.Context, h Handler) error {
	dec := NewDecoder(h, e.xr, e.yr, e.width, e.height)
	buf := make([]byte, eventSize*64)
	var pending []byte
	fds := []unix.PollFd{{Fd: int32(e.fd), Events: unix.POLLIN}}

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Poll(fds, 200)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll %s: %w", e.path, err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return fmt.Errorf("%s: device gone", e.path)
		}

		r, err := unix.Read(e.fd, buf)
		if errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", e.path, err)
		}
		if r == 0 {
			return fmt.Errorf("%s: end of stream", e.path)
		}
		pending = parseEvents(append(pending, buf[:r]...), dec.Feed)
	}
}

// Close releases the device.
func (e *Evdev) Close() error {
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}
