package state

var (
	accountPrefix  = []byte("account/")
	paymentPrefix  = []byte("payment/")
	escrowPrefix   = []byte("escrow/")
	orderPrefix    = []byte("order/")
	sequencePrefix = []byte("seq/")
	eventPrefix    = []byte("event/")
)

func prefixed(prefix []byte, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}

func accountKey(addr [20]byte) []byte { return prefixed(accountPrefix, addr[:]) }

func paymentKey(ref [32]byte) []byte { return prefixed(paymentPrefix, ref[:]) }

func escrowKey(ref [32]byte) []byte { return prefixed(escrowPrefix, ref[:]) }

func orderKey(ref [32]byte) []byte { return prefixed(orderPrefix, ref[:]) }

func sequenceKey(name string) []byte { return prefixed(sequencePrefix, []byte(name)) }

// CommittedPrefixes lists the key ranges that make up the ledger: balances and
// live records. Sequences and the event log are excluded.
func CommittedPrefixes() [][]byte {
	return [][]byte{accountPrefix, paymentPrefix, escrowPrefix, orderPrefix}
}
