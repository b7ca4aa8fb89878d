package enums

// CartStatus tracks the cart lifecycle from first visit to conversion.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
)

// CheckoutState is the re-entrancy guard state for a cart's initialization saga.
type CheckoutState string

const (
	CheckoutStateIdle    CheckoutState = "idle"
	CheckoutStateRunning CheckoutState = "running"
	CheckoutStateDone    CheckoutState = "done"
	CheckoutStateError   CheckoutState = "error"
)

// CheckoutStep names the saga step reported in errors and logs.
type CheckoutStep string

const (
	StepAddress    CheckoutStep = "address"
	StepEmail      CheckoutStep = "email"
	StepShipping   CheckoutStep = "shipping_method"
	StepPriceSync  CheckoutStep = "price_sync"
	StepSession    CheckoutStep = "payment_session"
	StepConfirm    CheckoutStep = "payment_confirm"
	StepFinalize   CheckoutStep = "order_finalize"
	StepSideEffect CheckoutStep = "side_effect"
)

// PaymentSessionStatus mirrors the gateway-reported intent status set.
type PaymentSessionStatus string

const (
	PaymentStatusPending               PaymentSessionStatus = "pending"
	PaymentStatusSucceeded             PaymentSessionStatus = "succeeded"
	PaymentStatusProcessing            PaymentSessionStatus = "processing"
	PaymentStatusRequiresAction        PaymentSessionStatus = "requires_action"
	PaymentStatusRequiresPaymentMethod PaymentSessionStatus = "requires_payment_method"
	PaymentStatusCanceled              PaymentSessionStatus = "canceled"
)

// OrderStatus is the terminal order lifecycle.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusSettling  OrderStatus = "settling"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCanceled  OrderStatus = "canceled"
)

// OutboxEventType enumerates domain events persisted for async publication.
type OutboxEventType string

const (
	EventOrderPlaced    OutboxEventType = "order.placed"
	EventMarketingOptIn OutboxEventType = "marketing.opt_in"
	EventCartAbandoned  OutboxEventType = "cart.abandoned"
)

// OutboxAggregateType scopes outbox events to their owning aggregate.
type OutboxAggregateType string

const (
	AggregateCart  OutboxAggregateType = "cart"
	AggregateOrder OutboxAggregateType = "order"
)
