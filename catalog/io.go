package catalog

import (
	"github.com/megahalos/mega/snapio"
)

// SavePath returns the on-disk location of a catalog: the configured
// basename suffixed with the snapshot name.
func SavePath(base, snapName string) string {
	return base + "_" + snapName + ".dat"
}

// Write stores the catalog at its save path under the given basename.
func (c *Catalog) Write(base string) error {
	return snapio.EncodeFile(SavePath(base, c.Name), c)
}

// Read loads the catalog for the named snapshot from the given basename.
func Read(base, snapName string) (*Catalog, error) {
	c := &Catalog{}
	if err := snapio.DecodeFile(SavePath(base, snapName), c); err != nil {
		return nil, err
	}
	return c, nil
}
