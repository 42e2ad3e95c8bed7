package rater

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/config"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/charge"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/domain/pricebook"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/errors"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/logger"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/pubsub/router"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Request is a rating request: the aggregate (or, for a delta re-rating,
// the nil AggregationID) to price against the effective price book at
// EffectiveDate.
type Request struct {
	AggregationID  *string
	CustomerID     string
	MetricType     types.MetricType
	Quantity       decimal.Decimal
	EffectiveDate  time.Time
	SourceEventIDs []string

	// ReratingJobID and SupersedesChargeID are set only for delta charges
	// produced by the late-event re-rating path.
	ReratingJobID      *string
	SupersedesChargeID *string
}

// Service is the Rater: pure with respect to its inputs — the same (price
// book snapshot, quantity, effectiveDate) always produces byte-identical
// output, which correction workflows depend on.
type Service struct {
	books     pricebook.Repository
	charges   charge.Repository
	publisher pubsub.Publisher
	topic     string
	logger    *logger.Logger
}

func NewService(books pricebook.Repository, charges charge.Repository, publisher pubsub.Publisher, cfg *config.Configuration, logger *logger.Logger) *Service {
	return &Service{books: books, charges: charges, publisher: publisher, topic: cfg.Kafka.TopicRatedCharge, logger: logger}
}

// Rate resolves the effective price book and rule for req, computes the
// subtotal for the rule's pricing model, and persists the resulting
// RatedCharge.
func (s *Service) Rate(ctx context.Context, req Request) (*charge.RatedCharge, error) {
	book, err := s.books.FindEffective(ctx, req.EffectiveDate)
	if err != nil {
		return nil, errors.WithOp(err, "rater.Service.Rate")
	}

	rule, err := s.books.FindRule(ctx, book.PriceBookID, req.MetricType)
	if err != nil {
		return nil, errors.WithOp(err, "rater.Service.Rate")
	}

	quantity := types.RoundQuantity(req.Quantity)
	subtotal, unitPrice, metadata, err := Compute(rule, quantity, req.EffectiveDate, req.SourceEventIDs)
	if err != nil {
		return nil, errors.WithOp(err, "rater.Service.Rate")
	}

	result := &charge.RatedCharge{
		ChargeID:            uuid.New().String(),
		CustomerID:          req.CustomerID,
		AggregationID:       req.AggregationID,
		PriceBookID:         book.PriceBookID,
		PriceVersion:        book.Version,
		RuleID:              rule.RuleID,
		Quantity:            quantity,
		UnitPrice:           unitPrice,
		Subtotal:            subtotal,
		Currency:            book.Currency,
		CalculationMetadata: metadata,
		CalculatedAt:        time.Now().UTC(),
		ReratingJobID:       req.ReratingJobID,
		SupersedesChargeID:  req.SupersedesChargeID,
	}

	if err := s.charges.Insert(ctx, result); err != nil {
		return nil, errors.WithOp(err, "rater.Service.Rate")
	}

	if err := s.publish(ctx, result); err != nil {
		// The charge is already durable, so a publish failure here is not
		// fatal to the rating attempt — rely on a future re-attempt, not on
		// unwinding the insert.
		s.logger.Errorw("failed to publish rated charge", "charge_id", result.ChargeID, "error", err)
	}

	return result, nil
}

// finalizedAggregate mirrors the watermark driver's wire payload for a
// finalized window. Decoded independently here rather than importing
// package watermark, so the Rater does not depend on the component that
// produces its input stream.
type finalizedAggregate struct {
	AggregationID string    `json:"aggregation_id"`
	CustomerID    string    `json:"customer_id"`
	MetricType    string    `json:"metric_type"`
	WindowStart   time.Time `json:"window_start"`
	Value         string    `json:"value"`
	EventIDs      []string  `json:"event_ids"`
	IsFinal       bool      `json:"is_final"`
}

// Register attaches the Rater's primary handler to r, consuming subscriber
// on the finalized-aggregates topic: every finalized-aggregate message is
// rated here, independent of the late-event delta path. Messages are not
// deduplicated, so a redelivered message produces a second charge.
func (s *Service) Register(r *router.Router, topic string, subscriber message.Subscriber) {
	r.AddNoPublishHandler("rater", topic, subscriber, s.HandleMessage)
}

// HandleMessage decodes msg as a finalized aggregate and rates it. A
// decode failure or an aggregate that is not yet final is logged and
// dropped rather than blocking the partition.
func (s *Service) HandleMessage(msg *message.Message) error {
	ctx := msg.Context()

	var payload finalizedAggregate
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Errorw("dropping malformed finalized aggregate", "message_uuid", msg.UUID, "error", err)
		return nil
	}
	if !payload.IsFinal {
		return nil
	}

	quantity, err := decimal.NewFromString(payload.Value)
	if err != nil {
		s.logger.Errorw("dropping aggregate with unparseable value",
			"aggregation_id", payload.AggregationID, "error", err)
		return nil
	}

	aggregationID := payload.AggregationID
	if _, err := s.Rate(ctx, Request{
		AggregationID:  &aggregationID,
		CustomerID:     payload.CustomerID,
		MetricType:     types.MetricType(payload.MetricType),
		Quantity:       quantity,
		EffectiveDate:  payload.WindowStart,
		SourceEventIDs: payload.EventIDs,
	}); err != nil {
		s.logger.Errorw("failed to rate finalized aggregate",
			"aggregation_id", payload.AggregationID, "error", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, c *charge.RatedCharge) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	return s.publisher.Publish(ctx, s.topic, msg)
}

// Compute is the per-pricingModel subtotal calculation, split out from
// Rate so it can be exercised directly by property tests (the Rater's
// purity requirement — same rule/quantity in, same subtotal/metadata out).
func Compute(rule *pricebook.PriceRule, quantity decimal.Decimal, effectiveDate time.Time, sourceEventIDs []string) (decimal.Decimal, decimal.Decimal, charge.CalculationMetadata, error) {
	switch rule.PricingModel {
	case pricebook.PricingFlat:
		return computeFlat(rule, quantity, effectiveDate, sourceEventIDs)
	case pricebook.PricingPerUnit, pricebook.PricingCommitted:
		// committed is reserved; current semantics = per_unit.
		return computePerUnit(rule, quantity, effectiveDate, sourceEventIDs)
	case pricebook.PricingTiered:
		return computeTiered(rule, quantity, effectiveDate, sourceEventIDs)
	case pricebook.PricingVolume:
		return computeVolume(rule, quantity, effectiveDate, sourceEventIDs)
	default:
		return decimal.Zero, decimal.Zero, charge.CalculationMetadata{}, errors.New("ERR_VALIDATION", fmt.Sprintf("unknown pricing model %q", rule.PricingModel))
	}
}

func computeFlat(rule *pricebook.PriceRule, quantity decimal.Decimal, effectiveDate time.Time, sourceEventIDs []string) (decimal.Decimal, decimal.Decimal, charge.CalculationMetadata, error) {
	if len(rule.Tiers) == 0 {
		return decimal.Zero, decimal.Zero, charge.CalculationMetadata{}, errors.New("ERR_VALIDATION", "flat pricing rule has no tiers")
	}
	unitPrice := types.RoundUnitPrice(rule.Tiers[0].UnitPrice)
	subtotal := types.RoundMoney(unitPrice)
	metadata := charge.CalculationMetadata{
		Formula:        unitPrice.String(),
		SourceEventIDs: sourceEventIDs,
		EffectiveDate:  effectiveDate,
	}
	return subtotal, unitPrice, metadata, nil
}

func computePerUnit(rule *pricebook.PriceRule, quantity decimal.Decimal, effectiveDate time.Time, sourceEventIDs []string) (decimal.Decimal, decimal.Decimal, charge.CalculationMetadata, error) {
	if len(rule.Tiers) == 0 {
		return decimal.Zero, decimal.Zero, charge.CalculationMetadata{}, errors.New("ERR_VALIDATION", "per_unit pricing rule has no tiers")
	}
	unitPrice := types.RoundUnitPrice(rule.Tiers[0].UnitPrice)
	subtotal := types.RoundMoney(unitPrice.Mul(quantity))
	metadata := charge.CalculationMetadata{
		Formula:        fmt.Sprintf("%s * %s", unitPrice.String(), quantity.String()),
		SourceEventIDs: sourceEventIDs,
		EffectiveDate:  effectiveDate,
	}
	return subtotal, unitPrice, metadata, nil
}

// computeTiered walks tiers in ascending order, billing each tier's
// capacity at its own unitPrice — the graduated pricing model.
func computeTiered(rule *pricebook.PriceRule, quantity decimal.Decimal, effectiveDate time.Time, sourceEventIDs []string) (decimal.Decimal, decimal.Decimal, charge.CalculationMetadata, error) {
	remaining := quantity
	previousLimit := decimal.Zero
	subtotal := decimal.Zero
	var breakdown []charge.TierBreakdown

	for _, tier := range rule.Tiers {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}

		capacity := tierCapacity(tier, previousLimit)
		unitsInTier := remaining
		if capacity.GreaterThanOrEqual(decimal.Zero) && unitsInTier.GreaterThan(capacity) {
			unitsInTier = capacity
		}

		tierSubtotal := unitsInTier.Mul(tier.UnitPrice)
		if tier.FlatFee != nil {
			tierSubtotal = tierSubtotal.Add(*tier.FlatFee)
		}
		tierSubtotal = types.RoundMoney(tierSubtotal)

		subtotal = subtotal.Add(tierSubtotal)
		breakdown = append(breakdown, charge.TierBreakdown{
			Tier:      tier.Tier,
			Quantity:  types.RoundQuantity(unitsInTier),
			UnitPrice: types.RoundUnitPrice(tier.UnitPrice),
			Subtotal:  tierSubtotal,
		})

		remaining = remaining.Sub(unitsInTier)
		if tier.UpTo != nil {
			previousLimit = *tier.UpTo
		}
	}

	subtotal = types.RoundMoney(subtotal)
	metadata := charge.CalculationMetadata{
		Formula:        "sum(tier.quantity * tier.unitPrice + tier.flatFee)",
		TiersApplied:   breakdown,
		SourceEventIDs: sourceEventIDs,
		EffectiveDate:  effectiveDate,
	}

	unitPrice := decimal.Zero
	if len(rule.Tiers) > 0 {
		unitPrice = types.RoundUnitPrice(lo.LastOrEmpty(rule.Tiers).UnitPrice)
	}
	return subtotal, unitPrice, metadata, nil
}

// tierCapacity returns how many units tier can absorb above previousLimit,
// or a negative sentinel (-1) for the unbounded top tier.
func tierCapacity(tier pricebook.PriceTier, previousLimit decimal.Decimal) decimal.Decimal {
	if tier.UpTo == nil {
		return decimal.NewFromInt(-1)
	}
	return tier.UpTo.Sub(previousLimit)
}

// computeVolume picks the single tier that covers quantity in full and
// bills every unit at that tier's price — the volume pricing model.
func computeVolume(rule *pricebook.PriceRule, quantity decimal.Decimal, effectiveDate time.Time, sourceEventIDs []string) (decimal.Decimal, decimal.Decimal, charge.CalculationMetadata, error) {
	tier, ok := lo.Find(rule.Tiers, func(t pricebook.PriceTier) bool {
		return t.UpTo == nil || t.UpTo.GreaterThanOrEqual(quantity)
	})
	if !ok {
		return decimal.Zero, decimal.Zero, charge.CalculationMetadata{}, errors.New("ERR_VALIDATION", "volume pricing rule has no covering tier")
	}

	unitPrice := types.RoundUnitPrice(tier.UnitPrice)
	subtotal := quantity.Mul(unitPrice)
	if tier.FlatFee != nil {
		subtotal = subtotal.Add(*tier.FlatFee)
	}
	subtotal = types.RoundMoney(subtotal)

	metadata := charge.CalculationMetadata{
		Formula: fmt.Sprintf("%s * %s (tier %d)", quantity.String(), unitPrice.String(), tier.Tier),
		TiersApplied: []charge.TierBreakdown{{
			Tier:      tier.Tier,
			Quantity:  types.RoundQuantity(quantity),
			UnitPrice: unitPrice,
			Subtotal:  subtotal,
		}},
		SourceEventIDs: sourceEventIDs,
		EffectiveDate:  effectiveDate,
	}
	return subtotal, unitPrice, metadata, nil
}
