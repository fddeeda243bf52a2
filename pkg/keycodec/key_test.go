package keycodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "kel event with event kind",
			key:  Key{Path: []string{"aid", "EAbc123", "kel", "000000"}, ContentKind: ContentKindCesr, EventKind: EventICP},
			want: "aid/EAbc123/kel/000000.icp.cesr",
		},
		{
			name: "kel event with event kind and text encoding",
			key:  Key{Path: []string{"aid", "EAbc123", "kel", "000001"}, ContentKind: ContentKindCesr, EventKind: EventROT, Encoding: EncodingText},
			want: "aid/EAbc123/kel/000001.rot.text.cesr",
		},
		{
			name: "said reverse index, no event kind",
			key:  Key{Path: []string{"said", "EXyz"}, ContentKind: ContentKindCesr},
			want: "said/EXyz.cesr",
		},
		{
			name: "json metadata record",
			key:  Key{Path: []string{"groups", "g1", "metadata"}, ContentKind: ContentKindJSON},
			want: "groups/g1/metadata.json",
		},
		{
			name: "single segment path",
			key:  Key{Path: []string{"keystate"}, ContentKind: ContentKindJSON},
			want: "keystate.json",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.key.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(encoded))

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.key, decoded)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte("no-suffix-at-all"))
	assert.Error(t, err)

	_, err = Decode([]byte("foo.bar"))
	assert.Error(t, err)

	_, err = Decode([]byte(""))
	assert.Error(t, err)
}

func TestEncode_Errors(t *testing.T) {
	_, err := Key{Path: nil, ContentKind: ContentKindJSON}.Encode()
	assert.Error(t, err)

	_, err = Key{Path: []string{"a"}, ContentKind: "xml"}.Encode()
	assert.Error(t, err)

	_, err = Key{Path: []string{"a"}, ContentKind: ContentKindCesr, EventKind: "bogus"}.Encode()
	assert.Error(t, err)

	_, err = Key{Path: []string{"a"}, ContentKind: ContentKindJSON, Encoding: EncodingText}.Encode()
	assert.Error(t, err, "encoding marker is only valid for cesr content")

	_, err = Key{Path: []string{"a/b"}, ContentKind: ContentKindJSON}.Encode()
	assert.Error(t, err, "path segment must not contain '/'")
}
