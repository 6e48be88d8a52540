package blur

// PackedFloor is the packed value of a zero response sample, and the starting
// maximum of the scan
const PackedFloor int32 = -16777216

// PackGray packs an 8-bit gray sample the way an opaque ARGB_8888 bitmap stores
// it (0xFFvvvvvv) and reinterprets the word as a signed integer.
func PackGray(v uint8) int32 {
	g := uint32(v)
	return int32(0xFF<<24 | g<<16 | g<<8 | g)
}

// MaxPacked returns the largest packed value across the response samples
func MaxPacked(response []byte) (score int32, peak uint8) {
	for _, v := range response {
		if v > peak {
			peak = v
		}
	}
	score = PackedFloor
	if p := PackGray(peak); p > score {
		score = p
	}
	return score, peak
}
