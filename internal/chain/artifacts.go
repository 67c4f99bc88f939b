package chain

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Artifact is a deployed contract: where it lives and how to talk to it.
type Artifact struct {
	Name    string
	ChainID string
	Address common.Address
	ABI     abi.ABI
}

// LoadArtifact reads the deployment map and ABI written by the contract
// build tooling:
//
//	<dir>/deployments/map.json              {"<chain>": {"<name>": ["0x..", ...]}}
//	<dir>/deployments/<chain>/<address>.json {"abi": [...]}
//
// The first address listed for the chain is the live one.
func LoadArtifact(dir, chainID, name string) (*Artifact, error) {
	mapFile := filepath.Join(dir, "deployments", "map.json")
	raw, err := os.ReadFile(mapFile)
	if err != nil {
		return nil, errors.Wrap(err, "read deployment map")
	}
	var deployments map[string]map[string][]string
	if err := json.Unmarshal(raw, &deployments); err != nil {
		return nil, errors.Wrapf(err, "parse %s", mapFile)
	}
	addrs := deployments[chainID][name]
	if len(addrs) == 0 {
		return nil, errors.Errorf("contract %s is not deployed on chain %s", name, chainID)
	}
	if !common.IsHexAddress(addrs[0]) {
		return nil, errors.Errorf("deployment map has malformed address %q", addrs[0])
	}

	abiFile := filepath.Join(dir, "deployments", chainID, addrs[0]+".json")
	raw, err = os.ReadFile(abiFile)
	if err != nil {
		return nil, errors.Wrap(err, "read contract build")
	}
	var build struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(raw, &build); err != nil {
		return nil, errors.Wrapf(err, "parse %s", abiFile)
	}
	if len(build.ABI) == 0 {
		return nil, errors.Errorf("%s has no abi", abiFile)
	}
	parsed, err := abi.JSON(bytes.NewReader(build.ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse abi")
	}
	return &Artifact{
		Name:    name,
		ChainID: chainID,
		Address: common.HexToAddress(addrs[0]),
		ABI:     parsed,
	}, nil
}
