package models

// Database schema
const Schema = `
CREATE TABLE IF NOT EXISTS organizations (
    id VARCHAR(36) PRIMARY KEY,
    slug VARCHAR(100) NOT NULL UNIQUE,
    name TEXT NOT NULL,
    connected_account_id VARCHAR(255)
);

CREATE TABLE IF NOT EXISTS payment_attempts (
    id VARCHAR(36) PRIMARY KEY,
    idempotency_key VARCHAR(255) UNIQUE,
    flow_type VARCHAR(32) NOT NULL,
    amount_cents BIGINT NOT NULL CHECK (amount_cents >= 100),
    platform_fee_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    organization_id VARCHAR(36) NOT NULL,
    connected_account_id VARCHAR(255) NOT NULL,
    target_entity_id VARCHAR(255),
    purpose TEXT,
    request_fingerprint VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL,
    provider_payment_intent_id VARCHAR(255),
    provider_checkout_session_id VARCHAR(255),
    provider_subscription_id VARCHAR(255),
    checkout_url TEXT,
    client_secret TEXT,
    last_error TEXT,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    claimed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_payment_attempts_org ON payment_attempts (organization_id);
CREATE INDEX IF NOT EXISTS idx_payment_attempts_pi ON payment_attempts (provider_payment_intent_id);
CREATE INDEX IF NOT EXISTS idx_payment_attempts_session ON payment_attempts (provider_checkout_session_id);
CREATE INDEX IF NOT EXISTS idx_payment_attempts_subscription ON payment_attempts (provider_subscription_id);

CREATE TABLE IF NOT EXISTS processed_events (
    event_id VARCHAR(255) PRIMARY KEY,
    type VARCHAR(100) NOT NULL,
    payload_snapshot JSONB NOT NULL DEFAULT '{}'::jsonb,
    delivery_count INT NOT NULL DEFAULT 1,
    outcome VARCHAR(20),
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS donations (
    id VARCHAR(36) PRIMARY KEY,
    organization_id VARCHAR(36) NOT NULL,
    provider_payment_intent_id VARCHAR(255) NOT NULL,
    provider_checkout_session_id VARCHAR(255),
    payment_attempt_id VARCHAR(36),
    amount_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL,
    donor_email VARCHAR(255),
    donor_name VARCHAR(255),
    status VARCHAR(20) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    counted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (organization_id, provider_payment_intent_id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id VARCHAR(36) PRIMARY KEY,
    organization_id VARCHAR(36) NOT NULL,
    provider_subscription_id VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    amount_cents BIGINT NOT NULL DEFAULT 0,
    currency VARCHAR(3) NOT NULL DEFAULT '',
    donor_email VARCHAR(255),
    latest_invoice_id VARCHAR(255),
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    last_event_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (organization_id, provider_subscription_id)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_provider_id ON subscriptions (provider_subscription_id);

CREATE TABLE IF NOT EXISTS organization_donation_stats (
    organization_id VARCHAR(36) PRIMARY KEY,
    total_cents BIGINT NOT NULL DEFAULT 0,
    donation_count BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
