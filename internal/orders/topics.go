package orders

// Semua event order lewat satu topic supaya urutan created -> status -> payment
// untuk satu order tetap terjaga dalam satu partition.
const TopicOrderEvents = "laundry.orders"

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
