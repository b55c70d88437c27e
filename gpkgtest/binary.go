package gpkgtest

import (
	"encoding/binary"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
)

// Binary encodes g as a GeoPackage binary geometry without envelope. Unlike
// gpkg.NewBinary it writes ISO WKB, so Z and M ordinates are kept. empty sets
// the empty geometry flag of the header.
func Binary(srsID int32, g geom.T, empty bool) ([]byte, error) {
	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	flags := byte(flagLittleEndian)
	if empty {
		flags |= flagEmpty
	}
	header := []byte{'G', 'P', 0, flags, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(header[4:], uint32(srsID))
	return append(header, body...), nil
}

func mustBinary(srsID int32, g geom.T, empty bool) []byte {
	b, err := Binary(srsID, g, empty)
	if err != nil {
		panic(err)
	}
	return b
}
