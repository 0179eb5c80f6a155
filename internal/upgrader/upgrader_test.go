package upgrader

import (
	"testing"

	"github.com/cloudflare/tableflip"
)

// TestTableflipListenSatisfiesListenerProvider exercises the adapter the way
// the acceptor uses it: construct, Listen once, read back an address, Stop.
func TestTableflipListenSatisfiesListenerProvider(t *testing.T) {
	tf, err := New(tableflip.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tf.Stop()

	ln, err := tf.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	if ln.Addr() == nil {
		t.Fatal("listener has no address")
	}
}

// TestTableflipListenTwiceOnSameGeneration exercises requesting two distinct
// listeners from the same upgrader generation, the shape a server with both
// a plaintext and TLS listener would use. A real fd-inheriting upgrade
// across process generations needs a forked child and isn't something a
// unit test can drive; this checks the part Tableflip itself adds on top of
// net.Listen, that repeat calls against one Upgrader keep working.
func TestTableflipListenTwiceOnSameGeneration(t *testing.T) {
	tf, err := New(tableflip.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tf.Stop()

	first, err := tf.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("first Listen: %v", err)
	}
	defer first.Close()

	second, err := tf.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	defer second.Close()

	if first.Addr().String() == second.Addr().String() {
		t.Fatal("two independently requested listeners bound the same address")
	}
}
