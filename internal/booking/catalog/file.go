package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

type catalogFile struct {
	Listings []Listing `toml:"listing"`
}

// LoadFile reads a TOML file of [[listing]] tables into an InMemory catalog.
func LoadFile(path string) (*InMemory, error) {
	var f catalogFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c := NewInMemory()
	for _, l := range f.Listings {
		if err := c.Put(l); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	return c, nil
}
