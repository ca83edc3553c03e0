package handshake

import "errors"

var errConfigNoVersions = errors.New("handshake: config must offer at least one protocol version")
