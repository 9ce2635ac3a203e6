package ingest

import "github.com/printory/qrledger/internal/core/domain"

// LotPartition holds one lot's surviving records in the order they survived
// deduplication.
type LotPartition struct {
	LotNumber string
	Records   []domain.AcceptedRecord
}

// PartitionByLot groups accepted records by lot number. Partitions come back
// in order of first appearance and records keep their within-lot order, so
// export output is deterministic. A lot number with no surviving records
// never appears.
func PartitionByLot(records []domain.AcceptedRecord) []LotPartition {
	index := make(map[string]int, len(records))

	var partitions []LotPartition

	for _, r := range records {
		i, ok := index[r.LotNumber]
		if !ok {
			i = len(partitions)
			index[r.LotNumber] = i

			partitions = append(partitions, LotPartition{LotNumber: r.LotNumber})
		}

		partitions[i].Records = append(partitions[i].Records, r)
	}

	return partitions
}
