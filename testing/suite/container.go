package suite

import (
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

const (
	// expireSeconds hard kills a container left behind by a crashed test run.
	expireSeconds   = 120
	maxWaitDuration = 120 * time.Second
)

type container struct {
	image string
	tag   string
	port  string
}

// run starts c and retries connect with the mapped host:port until it succeeds. The container is
// purged when the test ends.
func (c container) run(t *testing.T, connect func(hostPort string) error) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: c.image,
		Tag:        c.tag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start %s: %v", c.image, err)
	}

	_ = resource.Expire(expireSeconds)

	hostPort := resource.GetHostPort(c.port)

	pool.MaxWait = maxWaitDuration
	if err = pool.Retry(func() error { return connect(hostPort) }); err != nil {
		if purgeErr := pool.Purge(resource); purgeErr != nil {
			t.Fatalf("could not purge %s: %v", c.image, purgeErr)
		}

		t.Fatalf("could not connect to %s: %v", c.image, err)
	}

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge %s: %v", c.image, err)
		}
	})
}
