package onboard

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	i2c_SLAVE = 0x0703

	gpio_BASE = "/sys/class/gpio"
)

// I2CBusInterface allows the current sensors to be mocked in tests.
type I2CBusInterface interface {
	Get(i2cAddr int, reg uint8, buf []byte) error
	Put(i2cAddr int, reg uint8, buf []byte) error
}

type I2CBus struct {
	fd   *os.File
	lock sync.Mutex
}

func OpenI2C(dev string) (*I2CBus, error) {
	fd, err := os.OpenFile(dev, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	return &I2CBus{fd: fd}, nil
}

func (bus *I2CBus) connect(i2cAddr int) error {
	return unix.IoctlSetInt(int(bus.fd.Fd()), i2c_SLAVE, i2cAddr)
}

// Get selects the register with a write and reads len(buf) bytes back.
func (bus *I2CBus) Get(i2cAddr int, reg uint8, buf []byte) (err error) {
	bus.lock.Lock()
	defer bus.lock.Unlock()

	if err = bus.connect(i2cAddr); err != nil {
		return
	}

	// Do write/read inside the critical section
	if _, err = bus.fd.Write([]byte{reg}); err != nil {
		return
	}
	_, err = bus.fd.Read(buf)
	return
}

func (bus *I2CBus) Put(i2cAddr int, reg uint8, buf []byte) (err error) {
	bus.lock.Lock()
	defer bus.lock.Unlock()

	if err = bus.connect(i2cAddr); err != nil {
		return
	}

	_, err = bus.fd.Write(append([]byte{reg}, buf...))
	return
}

func (bus *I2CBus) Close() error {
	return bus.fd.Close()
}

// GPIOPin is a single digital line. Input pins report level, output pins set it.
type GPIOPin interface {
	Write(high bool) error
	Read() (bool, error)
}

// SysfsPin drives a pin through the kernel sysfs interface.
type SysfsPin struct {
	Number int
	value  *os.File
}

func OpenSysfsPin(number int, output bool) (p *SysfsPin, err error) {
	p = &SysfsPin{Number: number}

	dir := filepath.Join(gpio_BASE, fmt.Sprintf("gpio%d", number))
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		if err = os.WriteFile(filepath.Join(gpio_BASE, "export"), []byte(fmt.Sprintf("%d", number)), 0200); err != nil {
			return nil, err
		}
	}

	direction := "in"
	if output {
		direction = "out"
	}
	if err = os.WriteFile(filepath.Join(dir, "direction"), []byte(direction), 0200); err != nil {
		return nil, err
	}

	p.value, err = os.OpenFile(filepath.Join(dir, "value"), os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func (p *SysfsPin) Write(high bool) error {
	v := []byte("0")
	if high {
		v = []byte("1")
	}
	_, err := p.value.WriteAt(v, 0)
	return err
}

func (p *SysfsPin) Read() (bool, error) {
	buf := make([]byte, 1)
	if _, err := p.value.ReadAt(buf, 0); err != nil {
		return false, err
	}
	return buf[0] == '1', nil
}

func (p *SysfsPin) Close() error {
	return p.value.Close()
}
