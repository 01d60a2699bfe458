package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// DomainChallengePrefix is the label under which an institution publishes its
// wallet address as a TXT record.
const DomainChallengePrefix = "_certificate-trust"

// ErrResolverFailure is returned when the resolver answers with anything other
// than success or NXDOMAIN.
var ErrResolverFailure = errors.New("dns resolver failure")

// DomainVerifier checks that an institution controls its declared domain by
// looking for its wallet address in a TXT record at
// _certificate-trust.<domain>.
type DomainVerifier struct {
	resolver string
	client   *dns.Client
	log      *slog.Logger
}

// NewDomainVerifier queries resolver (host:port). An empty resolver uses the
// first nameserver of /etc/resolv.conf.
func NewDomainVerifier(resolver string, timeout time.Duration, log *slog.Logger) (*DomainVerifier, error) {
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("failed to read resolver configuration: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, errors.New("no nameserver configured")
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	if _, _, err := net.SplitHostPort(resolver); err != nil {
		return nil, fmt.Errorf("invalid resolver address %q: %w", resolver, err)
	}

	return &DomainVerifier{
		resolver: resolver,
		client:   &dns.Client{Net: "udp", Timeout: timeout},
		log:      log,
	}, nil
}

// ChallengeName returns the fully qualified name queried for domain.
func ChallengeName(domain string) string {
	return dns.Fqdn(DomainChallengePrefix + "." + strings.TrimSuffix(strings.ToLower(domain), "."))
}

// Check reports whether a TXT record at the challenge name of the institution's
// domain carries its wallet address. A missing name is not an error.
func (v *DomainVerifier) Check(ctx context.Context, institution *interfaces.Institution) (bool, error) {
	if strings.TrimSpace(institution.Domain) == "" {
		return false, fmt.Errorf("%w: institution %s has no domain", interfaces.ErrBadRequest, institution.ID)
	}
	name := ChallengeName(institution.Domain)

	query := new(dns.Msg)
	query.SetQuestion(name, dns.TypeTXT)
	query.RecursionDesired = true

	in, _, err := v.client.ExchangeContext(ctx, query, v.resolver)
	if err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrUpstreamUnavailable, err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		v.log.Info("No domain challenge published", slog.String("name", name))
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s for %s", ErrResolverFailure, dns.RcodeToString[in.Rcode], name)
	}

	for _, answer := range in.Answer {
		txt, ok := answer.(*dns.TXT)
		if !ok {
			continue
		}
		// Long values may be split across several character strings.
		if interfaces.SameWallet(strings.TrimSpace(strings.Join(txt.Txt, "")), institution.WalletAddress) {
			return true, nil
		}
	}

	v.log.Info("Domain challenge does not name the institution wallet", slog.String("name", name))
	return false, nil
}

// VerifyInstitution runs Check for an institution and records the outcome.
func (v *DomainVerifier) VerifyInstitution(ctx context.Context, store *InstitutionStore, id interfaces.InstitutionID) (*interfaces.Institution, error) {
	institution, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	verified, err := v.Check(ctx, institution)
	if err != nil {
		return nil, err
	}
	if err := store.SetDomainVerified(ctx, id, verified); err != nil {
		return nil, err
	}

	v.log.Info("Recorded domain verification",
		slog.String("institution_id", id.String()),
		slog.String("domain", institution.Domain),
		slog.Bool("verified", verified))
	return store.Get(ctx, id)
}
