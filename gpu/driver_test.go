package gpu

import (
	"errors"
	"slices"
	"testing"

	"github.com/7blacky7/graphrt/fault"
)

type fakeDevice struct {
	Device
	name string
}

func (f *fakeDevice) Name() string { return f.name }

func TestRegistry(t *testing.T) {
	Register("fake-a", func() (Device, error) { return &fakeDevice{name: "a"}, nil })
	Register("fake-b", func() (Device, error) {
		return nil, errors.Join(fault.ErrPlatformUnavailable, errors.New("no adapter"))
	})

	if got := Drivers(); !slices.Equal(got, []string{"fake-a", "fake-b"}) {
		t.Fatalf("Drivers: erwartet [fake-a fake-b], bekommen %v", got)
	}

	d, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != "a" {
		t.Errorf("leerer Name soll den ersten Treiber oeffnen, bekommen %q", d.Name())
	}

	for _, name := range []string{"fake-b", DriverNone, "missing"} {
		if _, err := Open(name); !errors.Is(err, fault.ErrPlatformUnavailable) {
			t.Errorf("%s: erwartet ErrPlatformUnavailable, bekommen %v", name, err)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("doppelte Registrierung soll paniken")
		}
	}()
	Register("fake-a", nil)
}

func TestSizeCount(t *testing.T) {
	if got := (Size{Width: 2, Height: 3, Depth: 4}).Count(); got != 24 {
		t.Errorf("erwartet 24, bekommen %d", got)
	}
}
