package payload

import "hash/crc32"

// Checksum returns the CRC-32 (IEEE) of data. It is the script identity used
// for dedup and is stored alongside persisted script records.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
