package merge

// Flash offsets for the ESP32-P4 boot layout
const (
	BootloaderOffset = 0x2000
	PartitionsOffset = 0x8000
	AppOffset        = 0x10000
)

// Flash parameters expected by the target's boot ROM. These are recorded
// in the manifest next to the merged image; they do not affect placement.
const (
	FlashMode = "qio"
	FlashFreq = "80m"
	FlashSize = "16MB"
)

// BootloaderMagic is the first byte of a valid ESP32 bootloader image.
const BootloaderMagic = 0xE9

// PadByte fills regions not covered by any segment. 0xFF matches erased
// NOR flash, which is what esptool pads with.
const PadByte = 0xFF
