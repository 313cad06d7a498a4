package hidreport

// HID short items start with a prefix byte: bTag in the top four bits,
// bType in bits 2-3 and bSize in the bottom two bits.
type itemPrefix byte

type itemType byte

const (
	itemMain   itemType = 0
	itemGlobal itemType = 1
	itemLocal  itemType = 2
)

// Tags of the item subset CMSIS-DAP firmware is known to emit. All other
// tags (Usage, Collection, Logical Minimum/Maximum, ...) are skipped.
const (
	tagMainInput         = 8 // 1000 00xx
	tagMainOutput        = 9 // 1001 00xx
	tagGlobalReportCount = 9 // 1001 01xx
)

func (p itemPrefix) tag() byte {
	return byte(p) >> 4
}

func (p itemPrefix) typ() itemType {
	return itemType((p >> 2) & 0x03)
}

// dataLen maps bSize to the item data length in bytes. A bSize of 3
// means a four byte field, per the HID short item encoding.
func (p itemPrefix) dataLen() int {
	size := int(p & 0x03)
	if size == 3 {
		return 4
	}
	return size
}
