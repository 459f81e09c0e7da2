package cache

import (
	"testing"

	"warungpos/backend/internal/domain"
)

func TestKeyDistinguishesFiltersContainingSeparator(t *testing.T) {
	a := Key("tenant-1", domain.ProductFilter{CategoryID: "a:b"})
	b := Key("tenant-1", domain.ProductFilter{CategoryID: "a", Search: "b"})
	if a == b {
		t.Fatalf("keys collide: %q", a)
	}

	c := Key("tenant-1", domain.ProductFilter{Search: "a:b"})
	d := Key("tenant-1", domain.ProductFilter{CategoryID: "", Search: "a"})
	if c == d {
		t.Fatalf("keys collide: %q", c)
	}
}

func TestKeyIsTenantPrefixed(t *testing.T) {
	filter := domain.ProductFilter{CategoryID: "cat-beverage", Search: "kopi"}
	a := Key("tenant-1", filter)
	b := Key("tenant-2", filter)
	if a == b {
		t.Fatalf("keys must differ across tenants, both %q", a)
	}
	if a[:len("products:tenant-1:")] != "products:tenant-1:" {
		t.Fatalf("unexpected key prefix: %q", a)
	}
}
