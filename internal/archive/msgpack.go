package archive

import (
	"fmt"

	"github.com/basekick-labs/welllog/internal/las"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPackContentType is the media type served for msgpack projections.
const MsgPackContentType = "application/msgpack"

// EncodeProjection encodes a projection as a msgpack map with keys, values
// and thin.
func EncodeProjection(p *las.Projection) ([]byte, error) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode projection: %w", err)
	}
	return data, nil
}
