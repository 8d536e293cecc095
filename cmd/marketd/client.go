package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/wallet"
)

// session bundles what client commands need: the RPC client and, for
// commands that sign, the local wallet.
type session struct {
	c      *cli.Context
	client *rpc.Client
	wallet *wallet.Wallet
}

func newSession(c *cli.Context, signing bool) (*session, func(), error) {
	cfg, flush, err := setup(c)
	if err != nil {
		return nil, nil, err
	}
	s := &session{c: c, client: rpc.NewClient(c.String(flagRPC.Name), cfg.RPCAuthToken)}
	if signing || c.Args().Len() == 0 {
		priv, err := wallet.LoadKey(c.String(flagKey.Name), config.Password())
		if err != nil {
			if signing {
				flush()
				return nil, nil, fmt.Errorf("load key: %w", err)
			}
		} else {
			s.wallet = wallet.New(cfg.Genesis.ChainID, priv)
		}
	}
	return s, flush, nil
}

// nonce returns the next nonce for the local wallet.
func (s *session) nonce() (uint64, error) {
	bal, err := s.client.Balance(s.c.Context, s.wallet.Address())
	if err != nil {
		return 0, err
	}
	return bal.Nonce, nil
}

// submit signs a transaction built by build and prints its id.
func (s *session) submit(build func(nonce uint64) (*core.Transaction, error)) error {
	nonce, err := s.nonce()
	if err != nil {
		return err
	}
	tx, err := build(nonce)
	if err != nil {
		return err
	}
	id, err := s.client.SendTx(s.c.Context, tx)
	if err != nil {
		return err
	}
	fmt.Printf("submitted %s %s\n", tx.Type, id)
	return nil
}

// address returns the first argument, or the local wallet's address.
func (s *session) address() (string, error) {
	if addr := s.c.Args().First(); addr != "" {
		return addr, nil
	}
	if s.wallet == nil {
		return "", fmt.Errorf("no address given and no keystore at %s", s.c.String(flagKey.Name))
	}
	return s.wallet.Address(), nil
}

func argID(c *cli.Context, i int) (uint64, error) {
	v := c.Args().Get(i)
	if v == "" {
		return 0, fmt.Errorf("missing asset id")
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("asset id %q: %w", v, err)
	}
	return id, nil
}

func argAmount(c *cli.Context, i int, what string) (uint64, error) {
	v := c.Args().Get(i)
	if v == "" {
		return 0, fmt.Errorf("missing %s", what)
	}
	return core.ParseAmount(v)
}

func buy(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()

	l, err := s.client.Listing(c.Context, id)
	if err != nil {
		return err
	}
	if l.Sold {
		return fmt.Errorf("asset %d is not for sale", id)
	}
	fmt.Printf("buying asset %d from %s for %s\n", id, l.Seller, core.FormatAmount(l.Price))
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.Purchase(id, l.Price, nonce)
	})
}

func resell(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	price, err := argAmount(c, 1, "price")
	if err != nil {
		return err
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()

	m, err := s.client.Market(c.Context)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.Resell(id, price, m.RelistFee, nonce)
	})
}

func give(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	to := c.Args().Get(1)
	if to == "" {
		return fmt.Errorf("missing recipient address")
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.GiveAsset(id, to, nonce)
	})
}

func transfer(c *cli.Context) error {
	to := c.Args().Get(0)
	if to == "" {
		return fmt.Errorf("missing recipient address")
	}
	amount, err := argAmount(c, 1, "amount")
	if err != nil {
		return err
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.Transfer(to, amount, nonce)
	})
}

func setRoyaltyRate(c *cli.Context) error {
	rate := c.Args().First()
	if rate == "" {
		return fmt.Errorf("missing rate")
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.SetRoyaltyRate(rate, nonce)
	})
}

func setRelistFee(c *cli.Context) error {
	fee, err := argAmount(c, 0, "fee")
	if err != nil {
		return err
	}
	s, flush, err := newSession(c, true)
	if err != nil {
		return err
	}
	defer flush()
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.SetRelistFee(fee, nonce)
	})
}

func printListing(l rpc.ListingResult) {
	if l.Sold {
		fmt.Printf("#%-4d held by %s (last sold for %s)\n", l.AssetID, l.Holder, core.FormatAmount(l.LastPrice))
		return
	}
	fmt.Printf("#%-4d for sale at %s by %s\n", l.AssetID, core.FormatAmount(l.Price), l.Seller)
}

func showListing(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	s, flush, err := newSession(c, false)
	if err != nil {
		return err
	}
	defer flush()
	l, err := s.client.Listing(c.Context, id)
	if err != nil {
		return err
	}
	printListing(l)
	return nil
}

func showUnsold(c *cli.Context) error {
	s, flush, err := newSession(c, false)
	if err != nil {
		return err
	}
	defer flush()
	ls, err := s.client.UnsoldListings(c.Context)
	if err != nil {
		return err
	}
	for _, l := range ls {
		printListing(l)
	}
	return nil
}

func showHoldings(c *cli.Context) error {
	s, flush, err := newSession(c, false)
	if err != nil {
		return err
	}
	defer flush()
	addr, err := s.address()
	if err != nil {
		return err
	}
	ls, err := s.client.Holdings(c.Context, addr)
	if err != nil {
		return err
	}
	for _, l := range ls {
		printListing(l)
	}
	return nil
}

func showBalance(c *cli.Context) error {
	s, flush, err := newSession(c, false)
	if err != nil {
		return err
	}
	defer flush()
	addr, err := s.address()
	if err != nil {
		return err
	}
	bal, err := s.client.Balance(c.Context, addr)
	if err != nil {
		return err
	}
	fmt.Printf("%s  balance %s  nonce %d\n", bal.Address, core.FormatAmount(bal.Balance), bal.Nonce)
	return nil
}

func showReceipt(c *cli.Context) error {
	txID := c.Args().First()
	if txID == "" {
		return fmt.Errorf("missing tx id")
	}
	s, flush, err := newSession(c, false)
	if err != nil {
		return err
	}
	defer flush()
	r, err := s.client.Receipt(c.Context, txID)
	if err != nil {
		return err
	}
	fmt.Printf("%s  block %d  %s %s\n", r.TxID, r.BlockHeight, r.Status, r.Error)
	return nil
}
