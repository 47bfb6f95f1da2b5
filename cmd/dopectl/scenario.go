package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"dope/config"
	coreerrors "dope/core/errors"
	"dope/crypto"
	"dope/native/settlement"
	"dope/native/stake"
)

// Scenario is a scripted sequence of protocol operations.
type Scenario struct {
	// Accounts maps names used in steps to hex addresses. Unlisted names are
	// derived deterministically.
	Accounts map[string]string `yaml:"accounts"`
	// Whitelist, when non-empty, registers an allow-list of these account
	// names for the stake token before the first step.
	Whitelist []string `yaml:"whitelist"`
	Steps     []Step   `yaml:"steps"`
}

// Step is one scripted call.
type Step struct {
	At      uint64 `yaml:"at"`
	Action  string `yaml:"action"`
	Account string `yaml:"account"`
	Spender string `yaml:"spender"`
	Token   string `yaml:"token"`
	Module  string `yaml:"module"`
	Amount  string `yaml:"amount"`
	// Expect names the error code the step must fail with.
	Expect string `yaml:"expect"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	return decodeScenario(file)
}

func decodeScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for i, step := range sc.Steps {
		if strings.TrimSpace(step.Action) == "" {
			return nil, fmt.Errorf("step %d: action required", i)
		}
	}
	return &sc, nil
}

type runner struct {
	engine   *settlement.Engine
	sale     config.Sale
	clock    *uint64
	accounts map[string]common.Address
	tree     *crypto.Tree
	members  map[common.Address]uint64
	out      io.Writer
}

func newRunner(engine *settlement.Engine, sale config.Sale, sc *Scenario, clock *uint64, out io.Writer) (*runner, error) {
	r := &runner{
		engine:   engine,
		sale:     sale,
		clock:    clock,
		accounts: make(map[string]common.Address),
		members:  make(map[common.Address]uint64),
		out:      out,
	}
	for name, raw := range sc.Accounts {
		addr, ok := crypto.ParseAddress(raw)
		if !ok {
			return nil, fmt.Errorf("account %s: %q is not an address", name, raw)
		}
		r.accounts[strings.ToLower(name)] = addr
	}
	if len(sc.Whitelist) > 0 {
		addrs := make([]common.Address, 0, len(sc.Whitelist))
		for i, name := range sc.Whitelist {
			addr, err := r.resolve(name)
			if err != nil {
				return nil, err
			}
			addrs = append(addrs, addr)
			r.members[addr] = uint64(i)
		}
		tree, err := crypto.NewAddressTree(addrs)
		if err != nil {
			return nil, err
		}
		r.tree = tree
	}
	return r, nil
}

// resolve maps a step name to an address: module custody names, scenario
// accounts, hex literals, then a derived address.
func (r *runner) resolve(name string) (common.Address, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "":
		return common.Address{}, errors.New("account required")
	case settlement.ModuleStake:
		return r.engine.StakeCustody(), nil
	case settlement.ModuleFund:
		return r.engine.FundCustody(), nil
	case settlement.ModuleLending:
		return r.engine.LendingCustody(), nil
	case "treasury":
		return r.engine.Treasury(), nil
	}
	if addr, ok := r.accounts[key]; ok {
		return addr, nil
	}
	if addr, ok := crypto.ParseAddress(name); ok {
		return addr, nil
	}
	addr := crypto.ModuleAddress("account/" + key)
	r.accounts[key] = addr
	return addr, nil
}

// run executes every step and returns the number of unexpected outcomes.
func (r *runner) run(ctx context.Context, sc *Scenario) (int, error) {
	if r.tree != nil {
		if err := r.engine.RegisterWhitelist(ctx, r.engine.StakeToken(), r.tree.Root()); err != nil {
			return 0, fmt.Errorf("register whitelist: %w", err)
		}
	}
	failures := 0
	for i, step := range sc.Steps {
		if step.At > 0 {
			*r.clock = step.At
		}
		detail, err := r.apply(ctx, step)
		code := string(coreerrors.CodeOf(err))
		switch {
		case err != nil && code == "":
			return failures, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		case step.Expect != "" && !strings.EqualFold(step.Expect, code):
			failures++
			fmt.Fprintf(r.out, "%4d t=%-8d %-14s FAIL expected %s, got %s\n", i, *r.clock, step.Action, step.Expect, outcome(err))
		case step.Expect == "" && err != nil:
			failures++
			fmt.Fprintf(r.out, "%4d t=%-8d %-14s FAIL %v\n", i, *r.clock, step.Action, err)
		default:
			fmt.Fprintf(r.out, "%4d t=%-8d %-14s %s %s\n", i, *r.clock, step.Action, outcome(err), detail)
		}
	}
	return failures, nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(coreerrors.CodeOf(err))
}

func (r *runner) amount(step Step) (*big.Int, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(step.Amount), "_", "")
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", step.Amount)
	}
	return value, nil
}

func (r *runner) apply(ctx context.Context, step Step) (string, error) {
	action := strings.ToLower(strings.TrimSpace(step.Action))
	if action == "pause" || action == "unpause" {
		return step.Module, r.engine.SetPaused(ctx, step.Module, action == "pause")
	}
	if action == "setsaletoken" {
		terms, err := r.sale.Terms()
		if err != nil {
			return "", err
		}
		sale, err := r.engine.SetSaleToken(ctx, terms)
		if err != nil {
			return "", err
		}
		return "supply=" + sale.Supply.String(), nil
	}
	if action == "reclaimunsold" {
		unsold, err := r.engine.ReclaimUnsold(ctx)
		if err != nil {
			return "", err
		}
		return "unsold=" + unsold.String(), nil
	}

	account, err := r.resolve(step.Account)
	if err != nil {
		return "", err
	}
	amount, err := r.amount(step)
	if err != nil {
		return "", err
	}
	switch action {
	case "mint":
		return fmt.Sprintf("%s %s %s", step.Token, step.Account, amount), r.engine.Mint(ctx, step.Token, account, amount)
	case "approve":
		spender, err := r.resolve(step.Spender)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s->%s %s", step.Token, step.Account, step.Spender, amount), r.engine.Approve(ctx, step.Token, account, spender, amount)
	case "stake":
		var proof *stake.Proof
		if idx, ok := r.members[account]; ok && r.tree != nil {
			siblings, err := r.tree.Proof(idx)
			if err != nil {
				return "", err
			}
			proof = &stake.Proof{Siblings: siblings, LeafIndex: idx}
		}
		pos, err := r.engine.Stake(ctx, account, amount, proof)
		if err != nil {
			return "", err
		}
		return "balance=" + pos.Amount.String(), nil
	case "unstake":
		pos, err := r.engine.Unstake(ctx, account, amount)
		if err != nil {
			return "", err
		}
		return "balance=" + pos.Amount.String(), nil
	case "fund":
		pos, err := r.engine.FundSaleToken(ctx, account, amount)
		if err != nil {
			return "", err
		}
		return "contributed=" + pos.Contributed.String(), nil
	case "deposit":
		pos, err := r.engine.DepositTokenForLend(ctx, account, amount)
		if err != nil {
			return "", err
		}
		return "deposited=" + pos.Deposited.String(), nil
	case "borrow":
		loan, err := r.engine.Borrow(ctx, account, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("borrowed=%s locked=%s", loan.Borrowed, loan.CollateralLocked), nil
	case "repay":
		loan, err := r.engine.Repay(ctx, account, amount)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("borrowed=%s locked=%s", loan.Borrowed, loan.CollateralLocked), nil
	case "withdraw":
		pos, err := r.engine.WithdrawLentToken(ctx, account)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("principal=%s reward=%s", pos.Principal, pos.Reward), nil
	case "claim":
		pos, err := r.engine.Claim(ctx, account)
		if err != nil {
			return "", err
		}
		return "payout=" + pos.Payout.String(), nil
	default:
		return "", fmt.Errorf("unknown action %q", step.Action)
	}
}
