// Package bootstrap wires a coffer instance: registry, emergency controller,
// vault, delay authority, and swapper, then runs the deployment sequence in
// which the temporary owner grants Owner to the delay authority and Guardian
// to the configured address, and finally self-revokes its own Owner
// membership.
// After bootstrap, Owner-gated operations are reachable only through calls
// originating from the delay authority.
package bootstrap

import (
	"fmt"
	"strconv"

	"coffer/internal/access"
	"coffer/internal/asset"
	"coffer/internal/config"
	"coffer/internal/emergency"
	"coffer/internal/logging"
	"coffer/internal/store"
	"coffer/internal/timelock"
	"coffer/internal/upgrade"
	"coffer/internal/vault"
)

// System is a fully wired coffer instance.
type System struct {
	Config     *config.Config
	Token      *asset.Token
	Registry   *access.Registry
	Controller *emergency.Controller
	Vault      *vault.Vault
	Timelock   *timelock.Authority
	Swapper    *upgrade.Swapper
	Store      *store.Store // nil disables persistence

	foreign map[string]asset.Fungible
}

// New builds a system from config. When the store already holds state the
// system is rehydrated from it; otherwise the deployment sequence runs and
// the result is persisted.
func New(cfg *config.Config, st *store.Store) (*System, error) {
	minDelay, err := cfg.MinDelay()
	if err != nil {
		return nil, err
	}

	s := &System{
		Config:  cfg,
		Token:   asset.NewToken(cfg.Asset.ID),
		Store:   st,
		foreign: make(map[string]asset.Fungible),
	}

	tempOwner := asset.Address(cfg.Roles.TempOwner)
	s.Registry = access.NewRegistry(tempOwner)
	s.Controller = emergency.NewController(s.Registry)

	var jrnl vault.Journal
	if st != nil {
		jrnl = st
	}
	s.Vault = vault.New(s.Token, asset.Address(cfg.Asset.VaultAddress), s.Registry, s.Controller, jrnl)

	// Foreign assets named in config become resolvable sweep targets.
	for _, id := range cfg.Asset.Foreign {
		if id == cfg.Asset.ID {
			continue
		}
		s.RegisterForeignAsset(asset.NewToken(id))
	}

	proposers := make([]asset.Address, 0, len(cfg.Roles.Proposers))
	for _, p := range cfg.Roles.Proposers {
		proposers = append(proposers, asset.Address(p))
	}
	var sink timelock.Sink
	if st != nil {
		sink = st
	}
	s.Timelock = timelock.New(asset.Address(cfg.Timelock.Address), minDelay, proposers, s, sink)

	s.Swapper = upgrade.NewSwapper(s.Registry, upgrade.Implementation{
		Name:          "coffer",
		LayoutVersion: store.CurrentSchemaVersion,
		StateKeys:     []string{"roles", "emergency", "share_balances", "asset_balances", "timelock_ops", "journal"},
	})

	hydrated, err := s.hydrate()
	if err != nil {
		return nil, err
	}
	if !hydrated {
		if err := s.deploy(tempOwner); err != nil {
			return nil, err
		}
	}

	// Emergency transitions journal and persist as they commit.
	s.Controller.Subscribe(func(ev emergency.Event) {
		if s.Store == nil {
			return
		}
		s.Store.Record(ev.Caller, "emergency", fmt.Sprintf("%s -> %s", ev.Previous, ev.New))
		if err := s.Store.SaveEmergencyState(ev.New.String()); err != nil {
			logging.Get(logging.CategoryEmergency).Error("failed to persist state %s: %v", ev.New, err)
		}
	})

	return s, nil
}

// deploy runs the deployment sequence. Grant failures abort before the
// self-revoke, leaving the temporary owner in control.
func (s *System) deploy(tempOwner asset.Address) error {
	logging.Boot("deploying: temp_owner=%s timelock=%s guardian=%s", tempOwner, s.Timelock.Address(), s.Config.Roles.Guardian)

	if err := s.Registry.Grant(tempOwner, access.RoleOwner, s.Timelock.Address()); err != nil {
		return fmt.Errorf("failed to grant owner to delay authority: %w", err)
	}
	if err := s.Registry.Grant(tempOwner, access.RoleGuardian, asset.Address(s.Config.Roles.Guardian)); err != nil {
		return fmt.Errorf("failed to grant guardian: %w", err)
	}
	if err := s.Registry.Revoke(tempOwner, access.RoleOwner, tempOwner); err != nil {
		return fmt.Errorf("failed to self-revoke temporary owner: %w", err)
	}

	if s.Store != nil {
		s.Store.Record(tempOwner, "deploy", "bootstrap sequence complete")
	}
	return s.Persist()
}

// hydrate restores state from the store. Returns false on a fresh database.
func (s *System) hydrate() (bool, error) {
	if s.Store == nil {
		return false, nil
	}
	stateName, ok, err := s.Store.EmergencyState()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	state, valid := emergency.ParseState(stateName)
	if !valid {
		return false, fmt.Errorf("persisted emergency state %q is not recognized", stateName)
	}
	s.Controller.Restore(state)

	for _, role := range []access.Role{access.RoleOwner, access.RoleGuardian, access.RoleOperator} {
		members, err := s.Store.RoleMembers(role.String())
		if err != nil {
			return false, err
		}
		addrs := make([]asset.Address, len(members))
		for i, m := range members {
			addrs[i] = asset.Address(m)
		}
		s.Registry.Restore(role, addrs)
	}

	shares, err := s.Store.ShareBalances()
	if err != nil {
		return false, err
	}
	s.Vault.RestoreShares(toAddressMap(shares))

	balances, err := s.Store.AssetBalances()
	if err != nil {
		return false, err
	}
	s.Token.Restore(toAddressMap(balances))

	ops, err := s.Store.Operations()
	if err != nil {
		return false, err
	}
	s.Timelock.Restore(ops)

	logging.Boot("hydrated from store: state=%s shares=%d ops=%d", state, len(shares), len(ops))
	return true, nil
}

// Persist snapshots roles, emergency state, the share ledger, and the
// stand-in asset balances.
func (s *System) Persist() error {
	if s.Store == nil {
		return nil
	}
	for _, role := range []access.Role{access.RoleOwner, access.RoleGuardian, access.RoleOperator} {
		members := s.Registry.Members(role)
		strs := make([]string, len(members))
		for i, m := range members {
			strs[i] = string(m)
		}
		if err := s.Store.ReplaceRoleMembers(role.String(), strs); err != nil {
			return err
		}
	}
	if err := s.Store.SaveEmergencyState(s.Controller.State().String()); err != nil {
		return err
	}
	if err := s.Store.ReplaceShareBalances(toStringMap(s.Vault.Balances())); err != nil {
		return err
	}
	return s.Store.ReplaceAssetBalances(toStringMap(s.Token.Balances()))
}

// RegisterForeignAsset makes a non-protected asset sweepable by name.
func (s *System) RegisterForeignAsset(f asset.Fungible) {
	s.foreign[f.ID()] = f
}

// ForeignAsset resolves a registered foreign asset by id. The protected asset
// resolves to itself so that a sweep attempt against it reaches the vault's
// unconditional rejection.
func (s *System) ForeignAsset(id string) (asset.Fungible, bool) {
	if id == s.Token.ID() {
		return s.Token, true
	}
	f, ok := s.foreign[id]
	return f, ok
}

func toAddressMap(in map[string]uint64) map[asset.Address]uint64 {
	out := make(map[asset.Address]uint64, len(in))
	for k, v := range in {
		out[asset.Address(k)] = v
	}
	return out
}

func toStringMap(in map[asset.Address]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// Dispatch resolves a scheduled timelock action. Implements
// timelock.Dispatcher; caller is always the delay authority's identity.
func (s *System) Dispatch(caller asset.Address, action string, args []string) error {
	switch action {
	case "unpause":
		return s.Controller.Unpause(caller)

	case "grant", "revoke":
		if len(args) != 2 {
			return fmt.Errorf("%s expects [role, address], got %d args", action, len(args))
		}
		role, ok := access.ParseRole(args[0])
		if !ok {
			return fmt.Errorf("unknown role %q", args[0])
		}
		var err error
		if action == "grant" {
			err = s.Registry.Grant(caller, role, asset.Address(args[1]))
		} else {
			err = s.Registry.Revoke(caller, role, asset.Address(args[1]))
		}
		if err != nil {
			return err
		}
		if s.Store != nil {
			s.Store.Record(caller, action, fmt.Sprintf("role=%s target=%s", role, args[1]))
		}
		return s.Persist()

	case "sweep":
		if len(args) != 2 {
			return fmt.Errorf("sweep expects [asset, recipient], got %d args", len(args))
		}
		f, ok := s.ForeignAsset(args[0])
		if !ok {
			return fmt.Errorf("unknown asset %q", args[0])
		}
		return s.Vault.Sweep(caller, f, asset.Address(args[1]))

	case "upgrade":
		if len(args) < 2 {
			return fmt.Errorf("upgrade expects [name, layout_version, keys...], got %d args", len(args))
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad layout version %q: %w", args[1], err)
		}
		return s.Swapper.Swap(caller, upgrade.Implementation{
			Name:          args[0],
			LayoutVersion: version,
			StateKeys:     args[2:],
		})

	default:
		return fmt.Errorf("unknown action %q", action)
	}
}
