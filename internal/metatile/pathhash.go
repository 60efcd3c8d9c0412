package metatile

import "fmt"

// hashLevels is the number of 256-way directory levels below the zoom dir.
const hashLevels = 5

// HashPath returns the storage path of the metatile at (x, y, z), without
// extension: "z/h0/h1/h2/h3/h4". Each hash byte packs one nibble of x (high)
// and one of y (low); h0 holds the most significant nibbles. Coordinates
// that differ only above bit 20 share a path.
func HashPath(x, y, z int) string {
	var hash [hashLevels]int
	for i := 0; i < hashLevels; i++ {
		hash[i] = ((x & 0x0f) << 4) | (y & 0x0f)
		x >>= 4
		y >>= 4
	}
	return fmt.Sprintf("%d/%d/%d/%d/%d/%d", z, hash[4], hash[3], hash[2], hash[1], hash[0])
}

// ObjectKey returns the slash separated key of a layer's metatile,
// "<layer>/<HashPath>.meta".
func ObjectKey(layer string, x, y, z int) string {
	return layer + "/" + HashPath(x, y, z) + ".meta"
}
