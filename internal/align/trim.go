package align

// DefaultCalibrationBuffer is the warm-up window, in seconds, discarded from
// the start of the accelerometer stream while the sensor settles.
const DefaultCalibrationBuffer = 5

// Trim returns the indices of rows whose bucket is at or after
// bufferSeconds, in their original order. The result may be empty.
func Trim(buckets []int64, bufferSeconds int) []int {
	keep := make([]int, 0, len(buckets))
	limit := int64(bufferSeconds)
	for i, b := range buckets {
		if b >= limit {
			keep = append(keep, i)
		}
	}
	return keep
}
