package protocol

const (
	// Every wire integer is a little-endian int64
	lenField int = 8

	directiveFieldCount int = 8
	LenDirective        int = directiveFieldCount * lenField
	LenID               int = lenField

	// GF(2^8) coefficients
	minCoef int64 = 0
	maxCoef int64 = 255
)
