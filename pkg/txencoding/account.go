package txencoding

import (
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// EncodeAccountData encodes account data as the RPC [data, encoding] pair.
func EncodeAccountData(data []byte, encoding Encoding) ([2]string, error) {
	switch encoding {
	case EncodingBase58:
		return [2]string{base58.Encode(data), string(EncodingBase58)}, nil

	case EncodingBase64:
		return [2]string{base64.StdEncoding.EncodeToString(data), string(EncodingBase64)}, nil

	case EncodingBase64Zstd:
		compressed, err := compressZstd(data)
		if err != nil {
			return [2]string{}, fmt.Errorf("zstd compression failed: %w", err)
		}
		return [2]string{base64.StdEncoding.EncodeToString(compressed), string(EncodingBase64Zstd)}, nil

	default:
		return [2]string{}, fmt.Errorf("%w for account data: %q", ErrUnsupportedEncoding, encoding)
	}
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding Encoding) ([]byte, error) {
	switch encoding {
	case EncodingBase58:
		return base58.Decode(encoded)

	case EncodingBase64:
		return base64.StdEncoding.DecodeString(encoded)

	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("base64 decode failed: %w", err)
		}
		return decompressZstd(compressed)

	default:
		return nil, fmt.Errorf("%w for account data: %q", ErrUnsupportedEncoding, encoding)
	}
}

// ApplyDataSlice returns data[offset:offset+length], clamped to the data bounds.
func ApplyDataSlice(data []byte, offset, length uint64) []byte {
	if offset >= uint64(len(data)) {
		return []byte{}
	}
	end := offset + length
	if end > uint64(len(data)) || end < offset {
		end = uint64(len(data))
	}
	return data[offset:end]
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}
