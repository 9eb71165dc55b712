package suite

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
)

var natsContainer = container{image: "nats", tag: "2.10-alpine", port: "4222/tcp"}

type NATSSuite struct {
	*testing.T

	Conn *nats.Conn
}

// NewNATS starts a NATS server and connects to it.
func NewNATS(t *testing.T) (context.Context, *NATSSuite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	var conn *nats.Conn
	natsContainer.run(t, func(hostPort string) error {
		var err error
		conn, err = nats.Connect("nats://" + hostPort)

		return err
	})

	t.Cleanup(conn.Close)

	return ctx, &NATSSuite{
		T:    t,
		Conn: conn,
	}
}
