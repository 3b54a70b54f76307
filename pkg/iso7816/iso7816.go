/*
Package iso7816 implements the command/response layer of ISO/IEC 7816-4
smart cards: APDU encoding, CLA and INS bytes, status word analysis, a Client
that follows the T=0 transport conventions, and readable reports for SELECT
and READ RECORD exchanges.

# Fundamentals

The exchange is strictly synchronous:
 1. The host sends a command APDU (header and optional body).
 2. The card returns a response APDU (optional data and SW1 SW2).

# Status Words

  - 9000: success.
  - 61XX: success, XX more bytes to fetch with GET RESPONSE.
  - 6CXX: wrong Le, XX is the length to ask for.
  - Anything else: a warning or an error outcome, reported in the Trace.

A status word is never turned into a Go error by this package. Go errors
are reserved for encoding problems and transport failures (*TransmitError).

# Usage

	client := iso7816.NewClient(card)
	trace, err := client.Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
	    return err // transport failure
	}
	if !trace.IsSuccess() {
	    fmt.Println(trace.Status().Verbose())
	}

	result, _ := iso7816.NewSelectResult(trace)
	fmt.Println(result.Describe())

MockCard replays scripted answers and is used to test code built on Client
without a reader.
*/
package iso7816
