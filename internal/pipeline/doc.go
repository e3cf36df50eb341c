// Package pipeline runs one processing request end to end: it loads the
// location and accelerometer exports, derives time buckets, drops the
// calibration window, joins and projects the streams and low-pass filters
// the y channel.
//
// The pipeline does not own domain logic. It sequences the sensorlog,
// align and dsp packages and turns their failures into a single *Error
// with a Kind and the Stage that produced it.
package pipeline
