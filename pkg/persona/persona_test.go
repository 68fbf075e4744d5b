package persona

import "testing"

func TestDefaultCatalogBuilds(t *testing.T) {
	reg, err := NewRegistry(Default())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	if reg.Len() != len(Default()) {
		t.Fatalf("expected %d personas, got %d", len(Default()), reg.Len())
	}
	p, ok := reg.Get("max")
	if !ok || p.Specialty != "career" {
		t.Fatalf("expected max persona, got %+v", p)
	}
	if _, ok := reg.Get("nobody"); ok {
		t.Fatalf("expected lookup miss")
	}
}

func TestByDigit(t *testing.T) {
	reg, err := NewRegistry(Default())
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	p, ok := reg.ByDigit("2")
	if !ok || p.ID != reg.List()[1].ID {
		t.Fatalf("expected second persona, got %+v", p)
	}
	for _, d := range []string{"0", "", "x", "6", "-1"} {
		if _, ok := reg.ByDigit(d); ok {
			t.Fatalf("expected digit %q to miss", d)
		}
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	ps := Default()
	ps[1].ID = ps[0].ID
	if _, err := NewRegistry(ps); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewRegistry(nil); err == nil {
		t.Fatalf("expected empty catalog error")
	}
}

func TestListIsACopy(t *testing.T) {
	reg, _ := NewRegistry(Default())
	list := reg.List()
	list[0].Name = "changed"
	if p, _ := reg.Get(list[0].ID); p.Name == "changed" {
		t.Fatalf("registry mutated through List")
	}
}
