package gdrive

import "testing"

func TestQuery(t *testing.T) {
	tests := []struct {
		folder, key string
		want        string
	}{
		{
			"", "osm/2/0/0/0/0/0.meta",
			"appProperties has { key='metatile_key' and value='osm/2/0/0/0/0/0.meta' } and trashed = false",
		},
		{
			"F1", "it's/1.meta",
			`appProperties has { key='metatile_key' and value='it\'s/1.meta' } and trashed = false and 'F1' in parents`,
		},
	}
	for _, tt := range tests {
		if got := query(tt.folder, tt.key); got != tt.want {
			t.Errorf("query(%q, %q) =\n%s\nwant\n%s", tt.folder, tt.key, got, tt.want)
		}
	}
}
