package wal

import "hash/crc32"

// checksumTable uses the Castagnoli polynomial, which has dedicated CPU
// instruction support on modern x86/ARM and so is cheaper than IEEE here.
var checksumTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 returns data's checksum over the Castagnoli table.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, checksumTable)
}

// ValidateCRC32 reports whether data's checksum matches expected.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
