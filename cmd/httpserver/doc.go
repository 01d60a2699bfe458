// Package main (cmd/httpserver) runs the certificate trust API server.
//
// The server keeps institutions, contract registrations and certificate
// metadata in a relational database (Postgres or SQLite), reads certificate
// state from the ledger networks listed in the networks file, and archives
// confirmed documents to the storage backends given with --archive.
//
// Issuance notifications are logged, or published to RabbitMQ with
// --notifier=amqp for cmd/notifier to deliver. Public verification routes are
// rate limited in memory, or through Redis when --redis-addr is set so that
// several replicas share one budget.
//
// Every flag with an environment variable can also be set in a .env file;
// DOTENV_FILE selects a file other than ./.env.
//
// Example networks file:
//
//	networks:
//	  localhost:
//	    rpc_url: http://127.0.0.1:8545
//	    chain_id: 1337
//	  sepolia:
//	    rpc_url: https://sepolia.infura.io/v3/${INFURA_KEY}
//	    chain_id: 11155111
//	    max_attempts: 5
package main
