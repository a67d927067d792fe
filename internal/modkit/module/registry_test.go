package module

import "testing"

type greeter interface {
	Greet() string
}

type greeterImpl struct{}

func (greeterImpl) Greet() string { return "hi" }

type bundle struct {
	G greeter
}

func TestRegistryPortsAs(t *testing.T) {
	t.Cleanup(Reset)

	Register("svc", bundle{G: greeterImpl{}})

	g, ok := PortsAs[greeter]("svc")
	if !ok {
		t.Fatalf("port not found in registered bundle")
	}
	if g.Greet() != "hi" {
		t.Fatalf("greet = %q", g.Greet())
	}

	if _, ok := PortsAs[greeter]("missing"); ok {
		t.Fatalf("lookup of an unregistered name must fail")
	}

	Reset()
	if _, ok := PortsAs[greeter]("svc"); ok {
		t.Fatalf("lookup after Reset must fail")
	}
}
